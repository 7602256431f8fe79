package room

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/packets"
)

// WaitingRoomID is the RoomID of clients queued in the waiting room.
const WaitingRoomID = "waiting"

const registerHint = "to register and login, go back and change the username to yourusername$yourpassword"

type waitingEntry struct {
	client         *client.Client
	secondsWaiting int
	ready          bool
}

// WaitingRoom is the matchmaking queue every player enters after logging in.
// The client sees it as a tag duel room whose roster is used to display the
// server banner, status lines and relayed chat.
type WaitingRoom struct {
	Logger *logrus.Logger

	manager *Manager
	// Insertion order, oldest first.
	queue []*waitingEntry

	minSecondsWaiting int
	maxSecondsWaiting int
}

func newWaitingRoom(m *Manager) *WaitingRoom {
	return &WaitingRoom{
		Logger:            m.Logger,
		manager:           m,
		minSecondsWaiting: m.Config.Lobby.MinSecondsWaiting,
		maxSecondsWaiting: m.Config.Lobby.MaxSecondsWaiting,
	}
}

func (w *WaitingRoom) ID() string { return WaitingRoomID }

func (w *WaitingRoom) Len() int { return len(w.queue) }

func (w *WaitingRoom) find(c *client.Client) int {
	for i, e := range w.queue {
		if e.client == c {
			return i
		}
	}
	return -1
}

// Contains reports whether c is queued.
func (w *WaitingRoom) Contains(c *client.Client) bool {
	return w.find(c) >= 0
}

// Insert queues c and presents the waiting room to it. Inserting a client that
// is already queued starts its wait over.
func (w *WaitingRoom) Insert(c *client.Client, _ packets.Mode) bool {
	if !c.LoginState.Resolved() {
		return false
	}
	if c.RoomID != "" && c.RoomID != WaitingRoomID {
		w.Logger.Warnf("[WAITING] %s is still in room %s", c.Name, c.RoomID)
		return false
	}

	if i := w.find(c); i >= 0 {
		w.queue = append(w.queue[:i], w.queue[i+1:]...)
	}
	entry := &waitingEntry{client: c}
	w.queue = append(w.queue, entry)
	c.RoomID = WaitingRoomID
	c.Type = packets.PlayerType1

	lobby := w.manager.Config.Lobby
	send(w.Logger, c, packets.STOCJoinGameType, &packets.GameJoined{Info: w.manager.hostInfo(packets.ModeTag)})
	send(w.Logger, c, packets.STOCTypeChangeType, &packets.TypeChange{Type: c.Type})
	send(w.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(c.Name, 0))
	send(w.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(lobby.Banner, 1))

	w.chatWith(c, lobby.ServerName, fmt.Sprintf("Welcome to the %s server!", lobby.ServerName))
	w.chatWith(c, lobby.ServerName, "Type !tag to enter a tag duel, !single for a single duel or !match")

	w.updateObserversNum()

	entry.ready = true
	send(w.Logger, c, packets.STOCPlayerChangeType, &packets.PlayerChange{
		Status: packets.PlayerStatus(c.Type, packets.PlayerChangeReady),
	})

	first, second := w.statusLines(c)
	send(w.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(first, 2))
	send(w.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(second, 3))

	if c.LoginState != client.Authenticated {
		w.chatWith(c, lobby.ServerName, registerHint)
	}

	w.Logger.Debugf("[WAITING] %s queued (%d waiting)", c.Name, len(w.queue))
	return true
}

func (w *WaitingRoom) statusLines(c *client.Client) (string, string) {
	switch c.LoginState {
	case client.Authenticated:
		return fmt.Sprintf("Rank: %d", w.manager.Accounts.Rank(c.Name)), fmt.Sprintf("Score: %d", c.RankScore)
	case client.InvalidPassword:
		return "Unregistered user", "invalid password"
	case client.InvalidUsername:
		return "Unregistered user", "invalid username"
	case client.NoPassword:
		return fmt.Sprintf("Rank: %d", w.manager.Accounts.Rank(c.Name)), "You need a password"
	default:
		return "Unranked player!", ":-)"
	}
}

// Extract removes c from the queue. Clients that are not queued are left alone.
func (w *WaitingRoom) Extract(c *client.Client) {
	i := w.find(c)
	if i < 0 {
		return
	}
	w.queue = append(w.queue[:i], w.queue[i+1:]...)
	c.RoomID = ""
	c.Type = packets.UnassignedType
	w.updateObserversNum()
}

// Leave removes c and disconnects it.
func (w *WaitingRoom) Leave(c *client.Client) {
	w.Extract(c)
	w.manager.Host.Disconnect(c)
}

func (w *WaitingRoom) SendTo(c *client.Client, msg string) {
	sendBody(w.Logger, c, packets.STOCChatType, packets.ChatBody(packets.ChatSystem, msg))
}

func (w *WaitingRoom) Broadcast(msg string, isAdmin bool) {
	body := packets.ChatBody(chatColor(isAdmin), msg)
	for _, e := range w.queue {
		sendBody(w.Logger, e.client, packets.STOCChatType, body)
	}
}

// updateObserversNum shows everybody else in the queue as spectators.
func (w *WaitingRoom) updateObserversNum() {
	if len(w.queue) == 0 {
		return
	}
	pkt := &packets.WatchChange{Count: uint16(len(w.queue) - 1)}
	for _, e := range w.queue {
		send(w.Logger, e.client, packets.STOCWatchChangeType, pkt)
	}
}

// chatWith shows msg in the chat of c as if it was said by sender. The roster
// slot of the opponent is borrowed to display the name and then given back to
// the banner.
func (w *WaitingRoom) chatWith(c *client.Client, sender, msg string) {
	leave := &packets.PlayerChange{Status: packets.PlayerStatus(packets.PlayerType2, packets.PlayerChangeLeave)}

	send(w.Logger, c, packets.STOCPlayerChangeType, leave)
	send(w.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(sender, 1))
	sendBody(w.Logger, c, packets.STOCChatType, packets.ChatBody(uint16(packets.PlayerType2), msg))
	send(w.Logger, c, packets.STOCPlayerChangeType, leave)
	send(w.Logger, c, packets.STOCPlayerEnterType, packets.NewPlayerEnter(w.manager.Config.Lobby.Banner, 1))
}

// Tick advances the wait of every queued player by one interval and forces
// the players that waited too long into a duel, provided enough players are
// ready to give them an opponent.
func (w *WaitingRoom) Tick() {
	if len(w.queue) == 0 {
		return
	}

	var bored []*client.Client
	candidates := 0
	for _, e := range w.queue {
		e.secondsWaiting++
		if !e.ready {
			continue
		}
		if e.secondsWaiting >= w.maxSecondsWaiting {
			bored = append(bored, e.client)
		}
		if e.secondsWaiting >= w.minSecondsWaiting {
			candidates++
		}
	}

	if len(bored) == 0 || candidates < 2 {
		return
	}
	for _, c := range bored {
		// An earlier forced match may already have taken this player.
		if !w.Contains(c) {
			continue
		}
		w.Extract(c)
		w.manager.InsertPlayer(c, packets.ModeAny)
	}
}

// ExtractBestMatch removes and returns the ready candidate whose score is
// closest to referenceScore. Ties go to whoever was queued first. It returns
// nil when nobody is close enough.
func (w *WaitingRoom) ExtractBestMatch(referenceScore int) *client.Client {
	var chosen *client.Client
	bestDistance := 0
	for _, e := range w.queue {
		if !e.ready || e.secondsWaiting < w.minSecondsWaiting {
			continue
		}
		distance := abs(referenceScore - e.client.RankScore)
		if chosen == nil || distance < bestDistance {
			chosen = e.client
			bestDistance = distance
		}
	}
	if chosen == nil || bestDistance > maxScoreDistance(referenceScore) {
		return nil
	}

	w.Extract(chosen)
	w.Logger.Debugf("[WAITING] matched %s at distance %d from %d", chosen.Name, bestDistance, referenceScore)
	return chosen
}

func maxScoreDistance(referenceScore int) int {
	if d := referenceScore / 4; d > 400 {
		return d
	}
	return 400
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (w *WaitingRoom) HandlePacket(c *client.Client, payload []byte) {
	if len(payload) == 0 {
		return
	}
	body := payload[1:]

	switch payload[0] {
	case packets.CTOSChatType:
		w.handleChat(c, packets.DecodeChat(body))
	case packets.CTOSLeaveGameType:
		w.Leave(c)
	case packets.CTOSJoinGameType:
		w.Insert(c, packets.ModeAny)
	case packets.CTOSReadyType:
		w.setReady(c, true)
	case packets.CTOSNotReadyType:
		w.setReady(c, false)
	case packets.CTOSToDuelistType:
		w.Extract(c)
		w.manager.InsertPlayer(c, packets.ModeSingle)
	default:
		w.Logger.Debugf("[WAITING] ignoring packet %#x from %s", payload[0], c.Name)
	}
}

func (w *WaitingRoom) setReady(c *client.Client, ready bool) {
	i := w.find(c)
	if i < 0 {
		return
	}
	w.queue[i].ready = ready

	status := packets.PlayerChangeNotReady
	if ready {
		status = packets.PlayerChangeReady
	}
	send(w.Logger, c, packets.STOCPlayerChangeType, &packets.PlayerChange{Status: packets.PlayerStatus(c.Type, status)})
}

var modeCommands = map[string]packets.Mode{
	"!tag":    packets.ModeTag,
	"!t":      packets.ModeTag,
	"!single": packets.ModeSingle,
	"!s":      packets.ModeSingle,
	"!match":  packets.ModeMatch,
	"!m":      packets.ModeMatch,
}

func (w *WaitingRoom) handleChat(c *client.Client, msg string) {
	if mode, ok := modeCommands[msg]; ok {
		w.Extract(c)
		w.manager.InsertPlayer(c, mode)
		return
	}
	if strings.HasPrefix(msg, "!pm ") {
		w.sendPrivateMessage(c, msg)
		return
	}
	if text, ok := strings.CutPrefix(msg, "!shout "); ok {
		w.shout(c, text)
		return
	}

	for _, e := range w.queue {
		if e.client == c {
			continue
		}
		w.chatWith(e.client, c.Name, msg)
	}
}

// sendPrivateMessage handles "!pm <name> <text>".
func (w *WaitingRoom) sendPrivateMessage(c *client.Client, msg string) {
	parts := strings.SplitN(msg, " ", 3)
	if len(parts) < 3 || parts[1] == "" || strings.TrimSpace(parts[2]) == "" {
		w.SendTo(c, "usage: !pm <name> <message>")
		return
	}

	recipient, text := parts[1], parts[2]
	if !w.manager.Host.SendPrivateMessage(recipient, fmt.Sprintf("[%s]: %s", c.Name, text)) {
		w.SendTo(c, fmt.Sprintf("%s is not online", recipient))
		return
	}
	w.SendTo(c, fmt.Sprintf("message sent to %s", recipient))
}

// shout handles "!shout <text>", which GMs use to reach every room and the supervisor.
func (w *WaitingRoom) shout(c *client.Client, text string) {
	if !c.IsAdmin() {
		w.SendTo(c, "only GMs can shout")
		return
	}
	if text = strings.TrimSpace(text); text == "" {
		w.SendTo(c, "usage: !shout <message>")
		return
	}
	w.Logger.Infof("[WAITING] %s shouted: %s", c.Name, text)
	w.manager.Host.RelayChat(fmt.Sprintf("%s: %s", c.Name, text), true)
}
