// Package server accepts duel client connections and multiplexes them onto a
// single event loop. The loop goroutine owns every session and room: readers,
// timers and the supervisor channel hand their work to it as events.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/control"
	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/auth"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/lflist"
	"github.com/checkmate-server/lobby/internal/packets"
	"github.com/checkmate-server/lobby/internal/room"
)

var ErrAlreadyStarted = errors.New("server already started")

const (
	eventQueueSize = 1024
	// How long shutdown waits for queued packets to be written.
	flushTimeout = 5 * time.Second
)

// Accounts authenticates players and serves their ladder standing.
type Accounts interface {
	room.Accounts
	Login(credential, ip string) auth.LoginResult
}

// CountryLookup resolves the country code of an address.
type CountryLookup interface {
	Lookup(ip string) string
}

// Dependencies are the collaborators of a Server. Countries and Lists are optional.
type Dependencies struct {
	Accounts  Accounts
	Countries CountryLookup
	Engine    room.DuelEngine
	Lists     lflist.Provider
}

// Server is the lobby: it owns the listener, the sessions and the rooms.
type Server struct {
	Config *core.Config
	Logger *logrus.Logger

	accounts  Accounts
	countries CountryLookup
	manager   *room.Manager
	registry  *client.Registry

	listener  *net.TCPListener
	listening bool
	gate      *gate
	control   *control.Channel

	events  chan func()
	done    chan struct{}
	started atomic.Bool

	// Unix nanos of the last loop iteration, read by the watchdog.
	heartbeat atomic.Int64
	// Called by the watchdog when the loop stalls.
	abort func(msg string)

	injectMu sync.Mutex
	injected []injectedChat

	rooms   atomic.Int64
	players atomic.Int64
}

type injectedChat struct {
	msg     string
	isAdmin bool
}

func New(cfg *core.Config, logger *logrus.Logger, deps Dependencies) *Server {
	s := &Server{
		Config:    cfg,
		Logger:    logger,
		accounts:  deps.Accounts,
		countries: deps.Countries,
		registry:  client.NewRegistry(),
		gate:      newGate(),
		events:    make(chan func(), eventQueueSize),
		done:      make(chan struct{}),
	}
	s.abort = func(msg string) {
		s.Logger.Fatalf("[LOBBY] %s", msg)
	}
	s.manager = room.NewManager(cfg, logger, room.Dependencies{
		Host:      s,
		Accounts:  deps.Accounts,
		Engine:    deps.Engine,
		Lists:     deps.Lists,
		Scheduler: s,
	})
	return s
}

// Start begins accepting clients on listener and runs the event loop until ctx
// is cancelled or, once StopListening was called, the last player is gone.
// controlConn is the optional supervisor channel.
func (s *Server) Start(ctx context.Context, listener *net.TCPListener, controlConn io.ReadWriteCloser) error {
	if listener == nil {
		return fmt.Errorf("no listener provided")
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.listener = listener
	s.listening = true
	s.beat()

	if controlConn != nil {
		s.control = control.NewChannel(controlConn, s.Logger)
		s.control.Run(func(msg *control.Chat) {
			s.InjectChat(msg.Message(), msg.IsAdmin)
		})
	}

	s.Logger.Infof("[LOBBY] waiting for connections on %v", listener.Addr())

	go s.acceptLoop(listener)
	go s.watchdog()
	go s.run(ctx)
	return nil
}

// Done is closed once the event loop has exited.
func (s *Server) Done() <-chan struct{} { return s.done }

// Stats returns the number of duel rooms and connected players as of the
// last loop iteration. Safe for concurrent use.
func (s *Server) Stats() (rooms, players int) {
	return int(s.rooms.Load()), int(s.players.Load())
}

// StopListening closes the listener. Connected players keep playing; the loop
// exits at the first stats tick without any player left.
func (s *Server) StopListening() {
	s.post(s.stopListening)
}

func (s *Server) stopListening() {
	if !s.listening {
		return
	}
	s.listening = false
	if err := s.listener.Close(); err != nil {
		s.Logger.Warnf("[LOBBY] error closing listener: %v", err)
	}
	// Let a paused acceptor observe the closed listener.
	s.gate.release()
	s.Logger.Infof("[LOBBY] stopped accepting connections, %d players left", s.registry.Len())
	s.pushStats()
}

// InjectChat queues a system chat line for every room. Safe for concurrent use.
func (s *Server) InjectChat(msg string, isAdmin bool) {
	s.injectMu.Lock()
	s.injected = append(s.injected, injectedChat{msg: msg, isAdmin: isAdmin})
	s.injectMu.Unlock()
}

func (s *Server) drainInjected() {
	s.injectMu.Lock()
	pending := s.injected
	s.injected = nil
	s.injectMu.Unlock()

	for _, chat := range pending {
		s.manager.Broadcast(chat.msg, chat.isAdmin)
	}
}

// SendPrivateMessage delivers msg to the player logged in as name.
func (s *Server) SendPrivateMessage(name, msg string) bool {
	c := s.registry.FindByName(name)
	if c == nil {
		return false
	}
	if err := c.SendBody(packets.STOCChatType, packets.ChatBody(packets.ChatSystem, msg)); err != nil {
		s.Logger.Debugf("[LOBBY] dropped private message to %s: %v", c.Name, err)
		return false
	}
	return true
}

// RelayChat shows msg in every room and forwards it to the supervisor.
func (s *Server) RelayChat(msg string, isAdmin bool) {
	s.manager.Broadcast(msg, isAdmin)
	if s.control == nil {
		return
	}
	if err := s.control.SendChat(msg, isAdmin); err != nil {
		s.Logger.Debugf("[LOBBY] unable to relay chat: %v", err)
	}
}

// post hands f to the event loop. It returns false once the loop has exited.
func (s *Server) post(f func()) bool {
	select {
	case s.events <- f:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) beat() {
	s.heartbeat.Store(time.Now().UnixNano())
}

func (s *Server) refreshStats() {
	s.rooms.Store(int64(s.manager.RoomCount()))
	s.players.Store(int64(s.registry.Len()))
}

func (s *Server) pushStats() {
	s.refreshStats()
	if s.control == nil {
		return
	}
	rooms, players := s.Stats()
	if err := s.control.SendStats(rooms, players, s.listening); err != nil {
		s.Logger.Debugf("[LOBBY] unable to report stats: %v", err)
	}
}

func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (s *Server) heartbeatInterval() time.Duration {
	if grace := s.Config.Lobby.WatchdogGrace; grace > 0 && grace/4 < time.Second {
		return grace / 4
	}
	return time.Second
}

// run is the event loop.
func (s *Server) run(ctx context.Context) {
	defer close(s.done)

	matchmaking, stopMatchmaking := ticker(s.Config.Lobby.MatchmakingInterval)
	defer stopMatchmaking()
	stats, stopStats := ticker(s.Config.Lobby.StatsInterval)
	defer stopStats()
	inject, stopInject := ticker(s.Config.Lobby.InjectInterval)
	defer stopInject()
	heartbeat, stopHeartbeat := ticker(s.heartbeatInterval())
	defer stopHeartbeat()

	var keepAlive <-chan time.Time
	if s.Config.Lobby.KeepAliveMessage != "" {
		var stopKeepAlive func()
		keepAlive, stopKeepAlive = ticker(s.Config.Lobby.KeepAliveInterval)
		defer stopKeepAlive()
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case f := <-s.events:
			f()
		case <-matchmaking:
			s.manager.Tick()
		case <-inject:
			s.drainInjected()
		case <-keepAlive:
			s.manager.Broadcast(s.Config.Lobby.KeepAliveMessage, true)
		case <-stats:
			s.pushStats()
			rooms, players := s.Stats()
			s.Logger.Debugf("[LOBBY] %d rooms, %d players", rooms, players)
			if !s.listening && players == 0 {
				s.Logger.Infof("[LOBBY] no players left, exiting")
				s.closeControl()
				return
			}
		case <-heartbeat:
		}
		s.refreshStats()
		s.beat()
	}
}

// shutdown closes the listener and every connection, waiting a bounded time
// for queued packets to be written.
func (s *Server) shutdown() {
	s.Logger.Infof("[LOBBY] shutting down (waiting for connections to close)")
	if s.listening {
		s.listening = false
		_ = s.listener.Close()
		s.gate.release()
	}

	var flushing []<-chan struct{}
	for _, c := range s.registry.All() {
		s.finalize(c)
		flushing = append(flushing, c.Flushed())
	}
	deadline := time.After(flushTimeout)
	for _, flushed := range flushing {
		select {
		case <-flushed:
		case <-deadline:
			s.Logger.Warnf("[LOBBY] gave up flushing connections")
			s.closeControl()
			return
		}
	}
	s.closeControl()
	s.Logger.Infof("[LOBBY] exited")
}

func (s *Server) closeControl() {
	if s.control != nil {
		s.control.Close()
	}
}
