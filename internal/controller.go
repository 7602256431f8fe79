package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/checkmate-server/lobby/internal/control"
	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/auth"
	"github.com/checkmate-server/lobby/internal/core/data"
	"github.com/checkmate-server/lobby/internal/core/debug"
	"github.com/checkmate-server/lobby/internal/duel"
	"github.com/checkmate-server/lobby/internal/geoip"
	"github.com/checkmate-server/lobby/internal/lflist"
	"github.com/checkmate-server/lobby/internal/server"
)

// Controller is the main entrypoint for the lobby. It's responsible for
// initializing the shared resources (database, logging, lists), wiring the
// server and running it until it exits.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	db     *gorm.DB

	mu     sync.Mutex
	server *server.Server
}

// Start blocks until ctx is cancelled or the server exits on its own after
// StopListening.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	// Start any debug utilities if we're configured to do so.
	debug.StartUtilities(c.logger, c.Config)

	c.db, err = data.Initialize(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer c.shutdown()

	lists, err := lflist.LoadFile(c.Config.ForbiddenListFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error loading forbidden lists: %w", err)
		}
		c.logger.Warnf("no forbidden list file at %s, using the configured hash", c.Config.ForbiddenListFile)
	}

	countries, err := geoip.NewTable(c.Config.GeoIP.Networks, c.Config.GeoIP.CacheTTL)
	if err != nil {
		return fmt.Errorf("error loading geoip networks: %w", err)
	}

	controlConn, err := control.Open(c.Config)
	if err != nil {
		return fmt.Errorf("error opening control channel: %w", err)
	}

	listener, err := c.createSocket()
	if err != nil {
		closeIfOpen(controlConn)
		return err
	}

	deps := server.Dependencies{
		Accounts:  auth.NewService(c.db, c.logger, c.Config),
		Countries: countries,
		Engine:    &duel.Referee{Logger: c.logger},
	}
	// A nil Lists would otherwise be wrapped in a non-nil interface.
	if lists != nil {
		deps.Lists = lists
	}
	lobby := server.New(c.Config, c.logger, deps)
	if err := lobby.Start(ctx, listener, controlConn); err != nil {
		_ = listener.Close()
		closeIfOpen(controlConn)
		return fmt.Errorf("error starting lobby: %w", err)
	}
	c.mu.Lock()
	c.server = lobby
	c.mu.Unlock()

	<-lobby.Done()
	return ctx.Err()
}

// StopListening stops accepting new players. The controller returns once the
// remaining players are gone.
func (c *Controller) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		c.server.StopListening()
	}
}

// createSocket opens the TCP socket game clients connect to.
func (c *Controller) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", c.Config.ListenAddress())
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s: %w", c.Config.ListenAddress(), err)
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}
	return socket, nil
}

func (c *Controller) shutdown() {
	if err := data.Shutdown(c.db); err != nil {
		c.logger.Warnf("error closing database: %v", err)
	}
}

func closeIfOpen(conn io.Closer) {
	if conn != nil {
		_ = conn.Close()
	}
}
