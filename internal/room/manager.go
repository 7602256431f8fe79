package room

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/lflist"
	"github.com/checkmate-server/lobby/internal/packets"
)

// Dependencies are the collaborators shared by every room.
type Dependencies struct {
	Host      Host
	Accounts  Accounts
	Engine    DuelEngine
	Lists     lflist.Provider
	Scheduler Scheduler
}

// Manager owns the waiting room and the duel rooms, and routes the packets of
// logged in clients to the room holding them.
type Manager struct {
	Config *core.Config
	Logger *logrus.Logger

	Host      Host
	Accounts  Accounts
	Engine    DuelEngine
	Lists     lflist.Provider
	Scheduler Scheduler

	waiting *WaitingRoom
	duels   map[string]*DuelRoom
	// Duel room IDs in creation order.
	order []string
}

func NewManager(cfg *core.Config, logger *logrus.Logger, deps Dependencies) *Manager {
	m := &Manager{
		Config:    cfg,
		Logger:    logger,
		Host:      deps.Host,
		Accounts:  deps.Accounts,
		Engine:    deps.Engine,
		Lists:     deps.Lists,
		Scheduler: deps.Scheduler,
		duels:     make(map[string]*DuelRoom),
	}
	m.waiting = newWaitingRoom(m)
	return m
}

func (m *Manager) WaitingRoom() *WaitingRoom { return m.waiting }

// RoomCount returns the number of live duel rooms.
func (m *Manager) RoomCount() int { return len(m.duels) }

// DuelRooms returns the live duel rooms, oldest first.
func (m *Manager) DuelRooms() []*DuelRoom {
	rooms := make([]*DuelRoom, 0, len(m.order))
	for _, id := range m.order {
		rooms = append(rooms, m.duels[id])
	}
	return rooms
}

// Room returns the room holding c, or nil.
func (m *Manager) Room(c *client.Client) Room {
	if c.RoomID == WaitingRoomID {
		return m.waiting
	}
	if r, ok := m.duels[c.RoomID]; ok {
		return r
	}
	return nil
}

func (m *Manager) hostInfo(mode packets.Mode) packets.HostInfo {
	d := m.Config.Duel
	info := packets.HostInfo{
		LFList:         d.LFList,
		Rule:           d.Rule,
		Mode:           uint8(mode),
		EnablePriority: d.EnablePriority,
		NoCheckDeck:    d.NoCheckDeck,
		NoShuffleDeck:  d.NoShuffleDeck,
		StartLP:        d.StartLP,
		StartHand:      d.StartHand,
		DrawCount:      d.DrawCount,
		TimeLimit:      d.TimeLimit,
	}
	if m.Lists != nil {
		info.LFList = lflist.Resolve(m.Lists, d.LFList)
	}
	return info
}

// InsertInWaitingRoom queues a client that just logged in.
func (m *Manager) InsertInWaitingRoom(c *client.Client) bool {
	if !c.LoginState.Resolved() || c.RoomID != "" {
		return false
	}
	return m.waiting.Insert(c, packets.ModeAny)
}

// InsertPlayer seats c in a duel room for mode, creating one when none is
// open, and fills the remaining seats with the closest waiting players.
// The client must not be in any room.
func (m *Manager) InsertPlayer(c *client.Client, mode packets.Mode) bool {
	if c.RoomID != "" {
		m.Logger.Errorf("[LOBBY] BUG: %s inserted while still in room %s", c.Name, c.RoomID)
		return false
	}

	duel := m.findAvailable(mode)
	if duel == nil {
		if mode == packets.ModeAny {
			mode = packets.ModeSingle
		}
		duel = m.newDuelRoom(mode)
	}
	if !duel.Insert(c, mode) {
		m.Logger.Errorf("[LOBBY] unable to seat %s in room %s", c.Name, duel.ID())
		if duel.Len() == 0 {
			duel.kill()
		}
		m.waiting.Insert(c, packets.ModeAny)
		return false
	}

	for duel.State() == Waiting {
		match := m.waiting.ExtractBestMatch(c.RankScore)
		if match == nil {
			break
		}
		if !duel.Insert(match, mode) {
			m.waiting.Insert(match, packets.ModeAny)
			break
		}
	}
	return true
}

func (m *Manager) findAvailable(mode packets.Mode) *DuelRoom {
	for _, id := range m.order {
		if r := m.duels[id]; r.IsAvailable(mode) {
			return r
		}
	}
	return nil
}

func (m *Manager) newDuelRoom(mode packets.Mode) *DuelRoom {
	r := newDuelRoom(m, uuid.NewString(), mode)
	m.duels[r.id] = r
	m.order = append(m.order, r.id)
	m.Logger.Debugf("[LOBBY] created %v room %s", mode, r.id)
	return r
}

// destroy forgets a dead duel room.
func (m *Manager) destroy(id string) {
	if _, ok := m.duels[id]; !ok {
		return
	}
	delete(m.duels, id)
	for i, other := range m.order {
		if other == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.Logger.Debugf("[LOBBY] destroyed room %s", id)
}

// HandlePacket forwards a packet of a logged in client to its room.
func (m *Manager) HandlePacket(c *client.Client, payload []byte) {
	r := m.Room(c)
	if r == nil {
		m.Logger.Warnf("[LOBBY] dropping packet from %s: not in any room", c.Name)
		return
	}
	r.HandlePacket(c, payload)
}

// Leave removes a client whose connection ended from its room. Clients
// naming a room that no longer exists are left for the host to finalize.
func (m *Manager) Leave(c *client.Client) {
	r := m.Room(c)
	if r == nil {
		m.Logger.Warnf("[LOBBY] %s left unknown room %q", c.Name, c.RoomID)
		return
	}
	r.Leave(c)
}

// Broadcast sends a system chat line to every room.
func (m *Manager) Broadcast(msg string, isAdmin bool) {
	m.waiting.Broadcast(msg, isAdmin)
	for _, r := range m.DuelRooms() {
		r.Broadcast(msg, isAdmin)
	}
}

// Tick runs one round of matchmaking.
func (m *Manager) Tick() {
	m.waiting.Tick()
}
