package server

import (
	"github.com/checkmate-server/lobby/internal/core/client"
)

// onDisconnect runs when the connection of c ended or was dropped by the server.
func (s *Server) onDisconnect(c *client.Client) {
	if !s.registry.Has(c) {
		return
	}
	if c.RoomID != "" {
		s.manager.Leave(c)
	} else {
		s.Disconnect(c)
	}

	if s.registry.Has(c) {
		s.Logger.Errorf("[LOBBY] BUG: tcp terminated but disconnect finalization not called for %s", c.IPAddr())
		s.Disconnect(c)
	}
}

// Disconnect flushes and releases the connection of c and forgets the session.
// Safe to call more than once.
func (s *Server) Disconnect(c *client.Client) {
	if !s.registry.Has(c) {
		c.RoomID = ""
		c.Close()
		return
	}
	s.finalize(c)
	s.Logger.Infof("[LOBBY] disconnected client %s", c.IPAddr())

	if s.listening && !s.atCapacity() && !s.gate.isOpen() {
		s.Logger.Infof("[LOBBY] below %d connections, resuming accept", s.Config.MaxConnections)
		s.gate.release()
	}
	s.pushStats()
}

func (s *Server) finalize(c *client.Client) {
	s.registry.Remove(c)
	c.RoomID = ""
	c.Close()
}
