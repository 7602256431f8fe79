package room

import "github.com/checkmate-server/lobby/internal/packets"

// DuelEngine plays the duels of a room once every member is ready.
type DuelEngine interface {
	// StartDuel begins a duel between players, listed by seat.
	StartDuel(host DuelHost, info packets.HostInfo, players []string) (Duel, error)
}

// Duel is a running duel.
type Duel interface {
	// HandlePacket receives an in-duel packet sent by the player at pos.
	HandlePacket(pos uint8, payload []byte)
	Close()
}

// DuelHost is the side of a duel room visible to its engine.
type DuelHost interface {
	SendTo(pos uint8, opcode uint8, body []byte)
	SendAll(opcode uint8, body []byte)
	// Victory ends the duel in favour of team 0 or 1.
	Victory(team int)
}

// duelHost adapts a DuelRoom to DuelHost.
type duelHost struct {
	room *DuelRoom
}

func (h duelHost) SendTo(pos uint8, opcode uint8, body []byte) {
	if int(pos) >= len(h.room.players) || h.room.players[pos] == nil {
		return
	}
	sendBody(h.room.Logger, h.room.players[pos], opcode, body)
}

func (h duelHost) SendAll(opcode uint8, body []byte) {
	for _, c := range h.room.players {
		if c != nil {
			sendBody(h.room.Logger, c, opcode, body)
		}
	}
}

func (h duelHost) Victory(team int) {
	h.room.Victory(team)
}
