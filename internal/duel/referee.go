// Package duel provides the built-in duel engine. It does not know the card
// game rules: it opens the duel, settles surrenders and leaves everything else
// to the duelists.
package duel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/packets"
	"github.com/checkmate-server/lobby/internal/room"
)

// Referee implements room.DuelEngine.
type Referee struct {
	Logger *logrus.Logger
}

func (r *Referee) StartDuel(host room.DuelHost, info packets.HostInfo, players []string) (room.Duel, error) {
	mode := packets.Mode(info.Mode)
	if len(players) != mode.Players() {
		return nil, fmt.Errorf("a %v duel needs %d players, got %d", mode, mode.Players(), len(players))
	}

	host.SendAll(packets.STOCDuelStartType, nil)
	return &refereeDuel{
		logger:  r.Logger,
		host:    host,
		players: players,
		tag:     mode.Base() == packets.ModeTag,
	}, nil
}

type refereeDuel struct {
	logger  *logrus.Logger
	host    room.DuelHost
	players []string
	tag     bool
	closed  bool
}

func (d *refereeDuel) team(pos uint8) int {
	if d.tag {
		return int(pos / 2)
	}
	return int(pos)
}

func (d *refereeDuel) HandlePacket(pos uint8, payload []byte) {
	if d.closed || len(payload) == 0 || int(pos) >= len(d.players) {
		return
	}

	switch payload[0] {
	case packets.CTOSSurrenderType:
		d.logger.Infof("[REFEREE] %s surrendered", d.players[pos])
		d.host.Victory(1 - d.team(pos))
	default:
		d.logger.Debugf("[REFEREE] %s sent %#x (%d bytes)", d.players[pos], payload[0], len(payload))
	}
}

func (d *refereeDuel) Close() {
	d.closed = true
}
