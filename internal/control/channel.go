package control

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/core"
)

const sendQueueSize = 64

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("control channel closed")

// Open connects to the supervisor as configured. It returns nil without an
// error when no control channel is configured.
func Open(cfg *core.Config) (io.ReadWriteCloser, error) {
	switch {
	case cfg.Control.FD > 0:
		f := os.NewFile(uintptr(cfg.Control.FD), "control")
		if f == nil {
			return nil, fmt.Errorf("invalid control descriptor %d", cfg.Control.FD)
		}
		defer f.Close()
		conn, err := net.FileConn(f)
		if err != nil {
			return nil, fmt.Errorf("adopting control descriptor %d: %w", cfg.Control.FD, err)
		}
		return conn, nil
	case cfg.Control.Address != "":
		conn, err := net.Dial("unix", cfg.Control.Address)
		if err != nil {
			return nil, fmt.Errorf("dialing control socket %s: %w", cfg.Control.Address, err)
		}
		return conn, nil
	}
	return nil, nil
}

// Channel exchanges messages with the supervisor. Reading and writing happen
// on their own goroutines; inbound chat lines are handed to a callback.
type Channel struct {
	Logger *logrus.Logger

	conn     io.ReadWriteCloser
	outbound chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewChannel(conn io.ReadWriteCloser, logger *logrus.Logger) *Channel {
	return &Channel{
		Logger:   logger,
		conn:     conn,
		outbound: make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Run starts the reader and writer. onChat is called from the reader
// goroutine for every CHAT message.
func (c *Channel) Run(onChat func(msg *Chat)) {
	go c.read(onChat)
	go c.write()
}

func (c *Channel) read(onChat func(msg *Chat)) {
	defer c.Close()

	var decoder Decoder
	buf := make([]byte, 2048)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			for {
				msg, derr := decoder.Next()
				if derr != nil {
					c.Logger.Errorf("[CONTROL] %v", derr)
					return
				}
				if msg == nil {
					break
				}
				if chat, ok := msg.(*Chat); ok {
					onChat(chat)
				} else {
					c.Logger.Debugf("[CONTROL] ignoring inbound message %T", msg)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.Logger.Warnf("[CONTROL] read error: %v", err)
			}
			return
		}
	}
}

func (c *Channel) write() {
	for data := range c.outbound {
		if _, err := c.conn.Write(data); err != nil {
			c.Logger.Warnf("[CONTROL] write error: %v", err)
			c.Close()
		}
	}
}

// SendStats queues a STATS report. Reports are dropped while the supervisor
// is not keeping up.
func (c *Channel) SendStats(rooms, players int, alive bool) error {
	return c.send(Encode(NewStats(rooms, players, alive)))
}

// SendChat queues a CHAT line for the supervisor.
func (c *Channel) SendChat(text string, isAdmin bool) error {
	return c.send(Encode(NewChat(text, isAdmin)))
}

func (c *Channel) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		return fmt.Errorf("control send queue full")
	}
}

// Close shuts the channel down. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbound)
	_ = c.conn.Close()
	close(c.done)
}

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }
