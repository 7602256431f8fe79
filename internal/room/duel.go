package room

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/core/auth"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/packets"
)

// State is the lifecycle stage of a duel room.
type State int

const (
	// Waiting for the seats to be filled.
	Waiting State = iota
	// Full and waiting for every duelist to be ready.
	Full
	// Playing a duel.
	Playing
	// Zombie rooms have a stalled or decided duel and wait to be reclaimed.
	Zombie
	// Dead rooms have released their players and are forgotten by the manager.
	Dead
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Full:
		return "FULL"
	case Playing:
		return "PLAYING"
	case Zombie:
		return "ZOMBIE"
	case Dead:
		return "DEAD"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DuelRoom seats the players of one duel and supervises it until the room dies.
type DuelRoom struct {
	Logger *logrus.Logger

	id      string
	mode    packets.Mode
	state   State
	manager *Manager

	// Indexed by seat, nil for empty seats.
	players   []*client.Client
	ready     []bool
	observers []*client.Client
	// Names by seat at the start of the duel, used to record the result.
	duelists []string
	duel     Duel

	waitingTimer   Timer
	userTimer      Timer
	reconnectTimer Timer
	zombieTimer    Timer
}

func newDuelRoom(m *Manager, id string, mode packets.Mode) *DuelRoom {
	r := &DuelRoom{
		Logger:  m.Logger,
		id:      id,
		mode:    mode,
		state:   Waiting,
		manager: m,
		players: make([]*client.Client, mode.Players()),
		ready:   make([]bool, mode.Players()),
	}
	r.waitingTimer = m.Scheduler.AfterFunc(m.Config.Duel.WaitingTimeout, r.onWaitingTimeout)
	return r
}

func (r *DuelRoom) ID() string         { return r.id }
func (r *DuelRoom) Mode() packets.Mode { return r.mode }
func (r *DuelRoom) State() State       { return r.state }

func (r *DuelRoom) Len() int {
	n := 0
	for _, c := range r.players {
		if c != nil {
			n++
		}
	}
	return n
}

// IsAvailable reports whether a player asking for mode can be seated here.
func (r *DuelRoom) IsAvailable(mode packets.Mode) bool {
	return r.state == Waiting && r.Len() < len(r.players) && r.mode.Matches(mode)
}

func (r *DuelRoom) setState(s State) {
	r.Logger.Debugf("[DUEL %s] %v -> %v", r.id, r.state, s)
	r.state = s
}

func (r *DuelRoom) seat(c *client.Client) (uint8, bool) {
	for i, p := range r.players {
		if p == c {
			return uint8(i), true
		}
	}
	return 0, false
}

// team maps a seat to team 0 or 1.
func (r *DuelRoom) team(pos uint8) int {
	if r.mode.Base() == packets.ModeTag {
		return int(pos / 2)
	}
	return int(pos)
}

func (r *DuelRoom) members() []*client.Client {
	var members []*client.Client
	for _, c := range r.players {
		if c != nil {
			members = append(members, c)
		}
	}
	return members
}

// everyone returns the seated players followed by the observers.
func (r *DuelRoom) everyone() []*client.Client {
	return append(r.members(), r.observers...)
}

// Observers returns the clients watching the room.
func (r *DuelRoom) Observers() []*client.Client { return r.observers }

func (r *DuelRoom) observerIndex(c *client.Client) int {
	for i, o := range r.observers {
		if o == c {
			return i
		}
	}
	return -1
}

func (r *DuelRoom) updateWatchers() {
	pkt := &packets.WatchChange{Count: uint16(len(r.observers))}
	for _, c := range r.everyone() {
		send(r.Logger, c, packets.STOCWatchChangeType, pkt)
	}
}

// Insert seats c in the first free seat.
func (r *DuelRoom) Insert(c *client.Client, _ packets.Mode) bool {
	if r.state != Waiting || c.RoomID != "" {
		return false
	}
	pos := -1
	for i, p := range r.players {
		if p == nil {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false
	}

	r.players[pos] = c
	r.ready[pos] = false
	c.RoomID = r.id
	c.Type = uint8(pos)

	send(r.Logger, c, packets.STOCJoinGameType, &packets.GameJoined{Info: r.manager.hostInfo(r.mode)})
	send(r.Logger, c, packets.STOCTypeChangeType, &packets.TypeChange{Type: c.Type})
	for i, other := range r.players {
		if other == nil {
			continue
		}
		send(r.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(other.Name, uint8(i)))
		if other == c {
			continue
		}
		send(r.Logger, other, packets.STOCPlayerEnterType, packets.NewPlayerEnter(c.Name, c.Type))
		if r.ready[i] {
			send(r.Logger, c, packets.STOCPlayerChangeType, &packets.PlayerChange{
				Status: packets.PlayerStatus(uint8(i), packets.PlayerChangeReady),
			})
		}
	}
	for _, o := range r.observers {
		send(r.Logger, o, packets.STOCPlayerEnterType, packets.NewPlayerEnter(c.Name, c.Type))
	}
	if len(r.observers) > 0 {
		send(r.Logger, c, packets.STOCWatchChangeType, &packets.WatchChange{Count: uint16(len(r.observers))})
	}
	r.Logger.Infof("[DUEL %s] %s took seat %d (%v)", r.id, c.Name, pos, r.mode)

	if r.Len() == len(r.players) {
		r.setState(Full)
		r.showScores()
	}
	return true
}

func (r *DuelRoom) score(c *client.Client) int {
	if r.mode.Base() == packets.ModeMatch {
		return c.MatchScore
	}
	return c.RankScore
}

func (r *DuelRoom) showScores() {
	var scores []string
	for _, c := range r.players {
		scores = append(scores, fmt.Sprintf("%s (%d)", c.Name, r.score(c)))
	}
	r.Broadcast(strings.Join(scores, " vs "), false)
	r.showOdds()
}

// showOdds announces the chance of each team to win, using the average score
// of its players.
func (r *DuelRoom) showOdds() {
	var names [2][]string
	var totals [2]int
	for pos, c := range r.players {
		team := r.team(uint8(pos))
		names[team] = append(names[team], c.Name)
		totals[team] += r.score(c)
	}
	if len(names[0]) == 0 || len(names[1]) == 0 {
		return
	}

	odds := auth.ExpectedScore(totals[0]/len(names[0]), totals[1]/len(names[1]))
	percent := int(math.Round(odds * 100))
	r.Broadcast(fmt.Sprintf("Odds: %s %d%% - %s %d%%",
		strings.Join(names[0], "+"), percent, strings.Join(names[1], "+"), 100-percent), false)
}

// removeMember empties the seat at pos and returns its former occupant.
func (r *DuelRoom) removeMember(pos uint8) *client.Client {
	c := r.players[pos]
	r.players[pos] = nil
	r.ready[pos] = false
	c.RoomID = ""
	c.Type = packets.UnassignedType

	leave := &packets.PlayerChange{Status: packets.PlayerStatus(pos, packets.PlayerChangeLeave)}
	for _, other := range r.everyone() {
		send(r.Logger, other, packets.STOCPlayerChangeType, leave)
	}
	return c
}

// removeObserver stops c from watching the room.
func (r *DuelRoom) removeObserver(c *client.Client) bool {
	i := r.observerIndex(c)
	if i < 0 {
		return false
	}
	r.observers = append(r.observers[:i], r.observers[i+1:]...)
	c.RoomID = ""
	c.Type = packets.UnassignedType
	r.updateWatchers()
	return true
}

// toObserver moves the duelist at pos to the spectators, freeing the seat.
func (r *DuelRoom) toObserver(c *client.Client, pos uint8) {
	if r.state != Waiting && r.state != Full {
		return
	}
	r.players[pos] = nil
	r.ready[pos] = false
	c.Type = packets.ObserverType
	r.observers = append(r.observers, c)

	observe := &packets.PlayerChange{Status: packets.PlayerStatus(pos, packets.PlayerChangeObserve)}
	for _, other := range r.everyone() {
		send(r.Logger, other, packets.STOCPlayerChangeType, observe)
	}
	send(r.Logger, c, packets.STOCTypeChangeType, &packets.TypeChange{Type: c.Type})
	r.updateWatchers()
	r.Logger.Infof("[DUEL %s] %s left seat %d to watch", r.id, c.Name, pos)

	if r.state == Full {
		r.setState(Waiting)
	}
}

// toDuelist seats an observer in the first free seat.
func (r *DuelRoom) toDuelist(c *client.Client) {
	if r.state != Waiting || r.Len() == len(r.players) {
		return
	}
	r.removeObserver(c)
	if !r.Insert(c, r.mode) {
		r.Logger.Errorf("[DUEL %s] unable to seat observer %s", r.id, c.Name)
		r.manager.waiting.Insert(c, packets.ModeAny)
	}
}

func (r *DuelRoom) empty() bool {
	return r.Len() == 0 && len(r.observers) == 0
}

// Extract removes c from its seat or the spectators without touching its connection.
func (r *DuelRoom) Extract(c *client.Client) {
	if r.removeObserver(c) {
		r.afterObserverDeparture()
		return
	}
	pos, ok := r.seat(c)
	if !ok {
		return
	}
	r.removeMember(pos)
	r.afterDeparture(pos, c.Name)
}

// Leave is called when the connection of c is gone.
func (r *DuelRoom) Leave(c *client.Client) {
	if r.removeObserver(c) {
		r.manager.Host.Disconnect(c)
		r.afterObserverDeparture()
		return
	}
	pos, ok := r.seat(c)
	if !ok {
		r.manager.Host.Disconnect(c)
		return
	}
	r.removeMember(pos)
	r.manager.Host.Disconnect(c)
	r.afterDeparture(pos, c.Name)
}

func (r *DuelRoom) afterObserverDeparture() {
	if r.empty() {
		r.kill()
	}
}

func (r *DuelRoom) afterDeparture(pos uint8, name string) {
	// Spectators alone keep a room open only until the duel would start.
	if r.empty() || r.Len() == 0 && r.state != Waiting && r.state != Full {
		r.kill()
		return
	}

	switch r.state {
	case Full:
		r.setState(Waiting)
	case Playing:
		r.Broadcast(fmt.Sprintf("%s disconnected", name), false)
		if r.reconnectTimer == nil {
			opponents := 1 - r.team(pos)
			r.reconnectTimer = r.manager.Scheduler.AfterFunc(r.manager.Config.Duel.ReconnectTimeout, func() {
				r.reconnectTimer = nil
				if r.state == Playing {
					r.Victory(opponents)
				}
			})
		}
	}
}

// leaveToWaitingRoom sends c back to the queue. Leaving a running duel forfeits it.
func (r *DuelRoom) leaveToWaitingRoom(c *client.Client, pos uint8) {
	r.removeMember(pos)
	r.manager.waiting.Insert(c, packets.ModeAny)

	if r.state == Playing {
		r.Victory(1 - r.team(pos))
		return
	}
	r.afterDeparture(pos, c.Name)
}

func (r *DuelRoom) HandlePacket(c *client.Client, payload []byte) {
	if len(payload) == 0 {
		return
	}
	pos, ok := r.seat(c)
	if !ok {
		if r.observerIndex(c) >= 0 {
			r.handleObserverPacket(c, payload)
		}
		return
	}
	body := payload[1:]

	switch payload[0] {
	case packets.CTOSChatType:
		r.chat(uint16(pos), packets.DecodeChat(body))
	case packets.CTOSLeaveGameType:
		r.leaveToWaitingRoom(c, pos)
	case packets.CTOSReadyType:
		r.setReady(pos, true)
	case packets.CTOSNotReadyType:
		r.setReady(pos, false)
	case packets.CTOSToObserverType:
		r.toObserver(c, pos)
	case packets.CTOSToDuelistType, packets.CTOSKickType, packets.CTOSStartType:
		r.Logger.Debugf("[DUEL %s] ignoring packet %#x from %s", r.id, payload[0], c.Name)
	default:
		if r.state == Playing && r.duel != nil {
			r.touch()
			r.duel.HandlePacket(pos, payload)
			return
		}
		r.Logger.Debugf("[DUEL %s] ignoring packet %#x from %s in state %v", r.id, payload[0], c.Name, r.state)
	}
}

func (r *DuelRoom) handleObserverPacket(c *client.Client, payload []byte) {
	switch payload[0] {
	case packets.CTOSChatType:
		r.chat(uint16(packets.ObserverType), packets.DecodeChat(payload[1:]))
	case packets.CTOSLeaveGameType:
		r.removeObserver(c)
		r.manager.waiting.Insert(c, packets.ModeAny)
		r.afterObserverDeparture()
	case packets.CTOSToDuelistType:
		r.toDuelist(c)
	default:
		r.Logger.Debugf("[DUEL %s] ignoring packet %#x from observer %s", r.id, payload[0], c.Name)
	}
}

func (r *DuelRoom) chat(sender uint16, msg string) {
	body := packets.ChatBody(sender, msg)
	for _, c := range r.everyone() {
		sendBody(r.Logger, c, packets.STOCChatType, body)
	}
}

func (r *DuelRoom) setReady(pos uint8, ready bool) {
	if r.state != Waiting && r.state != Full {
		return
	}
	r.ready[pos] = ready

	status := packets.PlayerChangeNotReady
	if ready {
		status = packets.PlayerChangeReady
	}
	pkt := &packets.PlayerChange{Status: packets.PlayerStatus(pos, status)}
	for _, c := range r.everyone() {
		send(r.Logger, c, packets.STOCPlayerChangeType, pkt)
	}

	if r.state != Full {
		return
	}
	for _, ok := range r.ready {
		if !ok {
			return
		}
	}
	r.start()
}

func (r *DuelRoom) start() {
	r.duelists = make([]string, len(r.players))
	for i, c := range r.players {
		r.duelists[i] = c.Name
	}

	duel, err := r.manager.Engine.StartDuel(duelHost{room: r}, r.manager.hostInfo(r.mode), r.duelists)
	if err != nil {
		r.Logger.Errorf("[DUEL %s] failed to start duel: %v", r.id, err)
		r.Broadcast("The duel could not be started", false)
		r.requeueMembers()
		r.kill()
		return
	}

	r.duel = duel
	stopTimer(&r.waitingTimer)
	r.setState(Playing)
	r.touch()
	r.Logger.Infof("[DUEL %s] %s started", r.id, strings.Join(r.duelists, ", "))
}

// touch restarts the inactivity timer of a running duel.
func (r *DuelRoom) touch() {
	stopTimer(&r.userTimer)
	r.userTimer = r.manager.Scheduler.AfterFunc(r.manager.Config.Duel.UserTimeout, r.onUserTimeout)
}

func (r *DuelRoom) onUserTimeout() {
	r.userTimer = nil
	if r.state != Playing {
		return
	}
	r.Broadcast("The duel timed out", false)
	r.zombify()
}

func (r *DuelRoom) zombify() {
	r.setState(Zombie)
	stopTimer(&r.userTimer)
	stopTimer(&r.reconnectTimer)
	if r.zombieTimer == nil {
		r.zombieTimer = r.manager.Scheduler.AfterFunc(r.manager.Config.Duel.ZombieTimeout, r.onZombieTimeout)
	}
}

func (r *DuelRoom) onZombieTimeout() {
	r.zombieTimer = nil
	if r.state != Zombie {
		return
	}
	r.requeueMembers()
	r.kill()
}

func (r *DuelRoom) onWaitingTimeout() {
	r.waitingTimer = nil
	if r.state != Waiting && r.state != Full {
		return
	}
	r.Broadcast("The room was idle for too long", false)
	r.requeueMembers()
	r.kill()
}

// Victory ends the duel in favour of team, records the result and sends the
// players back to the waiting room.
func (r *DuelRoom) Victory(team int) {
	if r.state != Playing && r.state != Zombie {
		return
	}
	r.zombify()
	r.recordResult(team)

	for _, c := range r.everyone() {
		send(r.Logger, c, packets.STOCDuelEndType, &packets.DuelEnd{})
		c.RankScore, c.MatchScore = r.manager.Accounts.FullScore(c.Name)
	}
	r.requeueMembers()
	r.kill()
}

func (r *DuelRoom) recordResult(team int) {
	var winners, losers []string
	for pos, name := range r.duelists {
		if r.team(uint8(pos)) == team {
			winners = append(winners, name)
		} else {
			losers = append(losers, name)
		}
	}
	r.Logger.Infof("[DUEL %s] %s defeated %s", r.id, strings.Join(winners, ", "), strings.Join(losers, ", "))

	match := r.mode.Base() == packets.ModeMatch
	for i := 0; i < len(winners) && i < len(losers); i++ {
		if err := r.manager.Accounts.RecordResult(winners[i], losers[i], match); err != nil {
			r.Logger.Errorf("[DUEL %s] %v", r.id, err)
		}
	}
}

func (r *DuelRoom) requeueMembers() {
	for pos, c := range r.players {
		if c == nil {
			continue
		}
		r.removeMember(uint8(pos))
		r.manager.waiting.Insert(c, packets.ModeAny)
	}
	for len(r.observers) > 0 {
		c := r.observers[0]
		r.removeObserver(c)
		r.manager.waiting.Insert(c, packets.ModeAny)
	}
}

// kill releases everything held by the room and hands it to the manager for removal.
func (r *DuelRoom) kill() {
	if r.state == Dead {
		return
	}
	r.setState(Dead)
	stopTimer(&r.waitingTimer)
	stopTimer(&r.userTimer)
	stopTimer(&r.reconnectTimer)
	stopTimer(&r.zombieTimer)
	if r.duel != nil {
		r.duel.Close()
		r.duel = nil
	}
	r.requeueMembers()
	r.manager.destroy(r.id)
}

func (r *DuelRoom) SendTo(c *client.Client, msg string) {
	sendBody(r.Logger, c, packets.STOCChatType, packets.ChatBody(packets.ChatSystem, msg))
}

func (r *DuelRoom) Broadcast(msg string, isAdmin bool) {
	body := packets.ChatBody(chatColor(isAdmin), msg)
	for _, c := range r.everyone() {
		sendBody(r.Logger, c, packets.STOCChatType, body)
	}
}
