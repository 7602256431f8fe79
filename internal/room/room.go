// Package room implements the rooms a logged in player can be in: the shared
// waiting room used for matchmaking and the duel rooms players are matched into.
//
// Rooms are not safe for concurrent use. Every method, timer callback included,
// must run on the goroutine that owns the sessions.
package room

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/packets"
)

// Room is the set of operations shared by the waiting room and the duel rooms.
type Room interface {
	ID() string
	// HandlePacket processes one frame payload, opcode included, sent by c.
	HandlePacket(c *client.Client, payload []byte)
	// Insert seats c. It returns false if c cannot join the room.
	Insert(c *client.Client, mode packets.Mode) bool
	// Extract removes c without touching its connection. No-op if c is not a member.
	Extract(c *client.Client)
	// Leave removes c and finalizes its disconnect through the Host.
	Leave(c *client.Client)
	SendTo(c *client.Client, msg string)
	Broadcast(msg string, isAdmin bool)
	Len() int
}

// Host is implemented by the server owning the connections.
type Host interface {
	// Disconnect flushes and releases the connection of c and forgets the session.
	Disconnect(c *client.Client)
	// SendPrivateMessage delivers msg to the player logged in as name.
	SendPrivateMessage(name, msg string) bool
	// RelayChat shows msg in every room and forwards it to the supervisor.
	RelayChat(msg string, isAdmin bool)
}

// Accounts is the slice of the account service rooms need.
type Accounts interface {
	Rank(name string) int
	FullScore(name string) (int, int)
	RecordResult(winner, loser string, match bool) error
}

// Timer is a pending callback.
type Timer interface {
	Stop()
}

// Scheduler arms timers whose callbacks run on the goroutine owning the rooms.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

func send(logger *logrus.Logger, c *client.Client, opcode uint8, pkt interface{}) {
	if err := c.Send(opcode, pkt); err != nil {
		logger.Debugf("[ROOM] dropped packet %#x to %s: %v", opcode, c.IPAddr(), err)
	}
}

func sendBody(logger *logrus.Logger, c *client.Client, opcode uint8, body []byte) {
	if err := c.SendBody(opcode, body); err != nil {
		logger.Debugf("[ROOM] dropped packet %#x to %s: %v", opcode, c.IPAddr(), err)
	}
}

func chatColor(isAdmin bool) uint16 {
	if isAdmin {
		return packets.ChatSystemShout
	}
	return packets.ChatSystem
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
