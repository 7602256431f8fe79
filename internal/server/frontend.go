package server

import (
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/checkmate-server/lobby/internal/core/client"
	coredebug "github.com/checkmate-server/lobby/internal/core/debug"
)

const readBufferSize = 2048

// acceptLoop accepts connections for as long as the listener is open. Each
// accepted connection is handed to the loop before the next one is taken so
// the gate reflects it.
func (s *Server) acceptLoop(listener *net.TCPListener) {
	for {
		if !s.gate.wait(s.done) {
			return
		}

		connection, err := listener.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Logger.Warnf("[LOBBY] failed to accept connection: %s", err.Error())
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s.setKeepAlive(connection)

		accepted := make(chan struct{})
		if !s.post(func() {
			defer close(accepted)
			s.acceptClient(connection)
		}) {
			_ = connection.Close()
			return
		}
		select {
		case <-accepted:
		case <-s.done:
			return
		}
	}
}

func (s *Server) setKeepAlive(connection *net.TCPConn) {
	ka := s.Config.TCPKeepAlive
	if err := connection.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     ka.Idle,
		Interval: ka.Interval,
		Count:    ka.Count,
	}); err != nil {
		s.Logger.Debugf("[LOBBY] unable to enable keepalive: %v", err)
	}
}

// acceptClient registers a new session. Runs on the loop.
func (s *Server) acceptClient(connection net.Conn) {
	c := client.NewClient(s.registry.NextID(), connection, s.Config.MaxPacketSize)
	if s.countries != nil {
		c.Country = s.countries.Lookup(c.IPAddr())
	}
	s.registry.Add(c)
	s.Logger.Infof("[LOBBY] accepted connection from %s:%s", c.IPAddr(), c.Port())

	if s.atCapacity() {
		s.gate.pause()
		s.Logger.Warnf("[LOBBY] reached %d connections, pausing accept", s.registry.Len())
	}
	s.pushStats()

	go s.processPackets(c)
}

// processPackets reads from c until the connection ends and posts what it
// reads to the loop.
func (s *Server) processPackets(c *client.Client) {
	defer func() {
		if err := recover(); err != nil {
			s.Logger.Errorf("[LOBBY] error reading from %s: error=%v, trace: %s", c.IPAddr(), err, debug.Stack())
		}
		s.post(func() { s.onDisconnect(c) })
	}()

	buffer := make([]byte, readBufferSize)
	for {
		n, err := c.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])
			if !s.post(func() { s.onData(c, chunk) }) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.Logger.Debugf("[LOBBY] read error from %s: %v", c.IPAddr(), err)
			}
			return
		}
	}
}

// onData feeds a chunk to the frame decoder of c and handles every complete frame.
func (s *Server) onData(c *client.Client, chunk []byte) {
	if !s.registry.Has(c) {
		return
	}
	defer s.closeConnectionAndRecover(c)

	c.Decoder.Feed(chunk)
	for s.registry.Has(c) {
		payload, err := c.Decoder.Next()
		if err != nil {
			s.Logger.Warnf("[LOBBY] dropping %s: %v", c.IPAddr(), err)
			s.onDisconnect(c)
			return
		}
		if payload == nil {
			return
		}
		if s.Config.Debugging.PacketLoggingEnabled {
			coredebug.DumpFrame(s.Logger, c.IPAddr(), payload)
		}
		s.handlePacket(c, payload)
	}
}

// closeConnectionAndRecover catches a panic raised while handling a packet of c
// and sends c down the disconnect path.
func (s *Server) closeConnectionAndRecover(c *client.Client) {
	if err := recover(); err != nil {
		s.Logger.Errorf("[LOBBY] error in client communication with %s: error=%v, trace: %s",
			c.IPAddr(), err, debug.Stack())
		s.onDisconnect(c)
	}
}

// atCapacity reports whether the connection limit is reached. A limit of 0 disables it.
func (s *Server) atCapacity() bool {
	return s.Config.MaxConnections > 0 && s.registry.Len() >= s.Config.MaxConnections
}
