package server

import (
	"net"
	"strings"

	"github.com/checkmate-server/lobby/internal/core/bytes"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/packets"
)

const (
	pingRequest    = "ping"
	pingResponse   = "pong\x00"
	ipChangePrefix = "ipchange"
)

// handlePacket routes a frame: sessions without a login ruling go through the
// handshake, everyone else talks to their room.
func (s *Server) handlePacket(c *client.Client, payload []byte) {
	if c.LoginState.Resolved() {
		s.manager.HandlePacket(c, payload)
		return
	}
	s.handshake(c, payload)
}

func (s *Server) handshake(c *client.Client, payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch {
	case string(bytes.StripPadding(payload)) == pingRequest:
		if err := c.SendRaw([]byte(pingResponse)); err != nil {
			s.Logger.Debugf("[LOBBY] unable to answer ping from %s: %v", c.IPAddr(), err)
		}
	case len(payload) >= len(ipChangePrefix)+net.IPv4len && string(payload[:len(ipChangePrefix)]) == ipChangePrefix:
		s.changeIP(c, payload[len(ipChangePrefix):len(ipChangePrefix)+net.IPv4len])
	case payload[0] == packets.CTOSPlayerInfoType && c.LoginState == client.NotEntered:
		pkt, err := packets.DecodePlayerInfo(payload[1:])
		if err != nil {
			s.Logger.Warnf("[LOBBY] %s: %v", c.IPAddr(), err)
			return
		}
		c.Name = strings.TrimSpace(bytes.Utf16ToString(pkt.Name[:]))
		c.LoginState = client.WaitingJoin
	case payload[0] == packets.CTOSJoinGameType && c.LoginState == client.WaitingJoin && c.Name != "":
		s.login(c, payload[1:])
	default:
		s.Logger.Warnf("[LOBBY] ignoring packet %#x from %s before login", payload[0], c.IPAddr())
	}
}

// changeIP applies the address forwarded by a fronting proxy.
func (s *Server) changeIP(c *client.Client, ip net.IP) {
	if !s.Config.Lobby.TrustIPChange {
		s.Logger.Warnf("[LOBBY] ignoring ipchange from %s", c.IPAddr())
		return
	}
	previous := c.IPAddr()
	c.SetIPAddr(ip.String())
	if s.countries != nil {
		c.Country = s.countries.Lookup(c.IPAddr())
	}
	s.Logger.Debugf("[LOBBY] %s is forwarding %s", previous, c.IPAddr())
}

// login rules on the credential of c and queues it in the waiting room.
func (s *Server) login(c *client.Client, body []byte) {
	pkt, err := packets.DecodeJoinGame(body)
	if err != nil {
		s.Logger.Warnf("[LOBBY] %s: %v", c.IPAddr(), err)
		return
	}

	credential := c.Name
	if pass := bytes.Utf16ToString(pkt.Pass[:]); pass != "" && !strings.Contains(credential, "$") {
		credential += "$" + pass
	}

	result := s.accounts.Login(credential, c.IPAddr())
	c.Name = result.Name
	c.LoginState = result.State
	c.Color = result.Color
	c.RankScore, c.MatchScore = s.accounts.FullScore(c.Name)

	if !s.manager.InsertInWaitingRoom(c) {
		s.Logger.Errorf("[LOBBY] unable to queue %s after login", c.Name)
		return
	}
	if c.LoginState.Named() {
		s.registry.Index(c)
	}
	s.Logger.Infof("[LOBBY] %s logged in from %s (%v)", c.Name, c.IPAddr(), c.LoginState)
}
