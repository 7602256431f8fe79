package room

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/codec"
	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/bytes"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/lflist"
	"github.com/checkmate-server/lobby/internal/packets"
)

const (
	testWaitingTimeout   = 300 * time.Second
	testUserTimeout      = 180 * time.Second
	testReconnectTimeout = 30 * time.Second
	testZombieTimeout    = 60 * time.Second
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() { t.stopped = true }

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs every pending timer armed for d.
func (s *fakeScheduler) fire(d time.Duration) int {
	fired := 0
	for _, t := range append([]*fakeTimer(nil), s.timers...) {
		if t.stopped || t.d != d {
			continue
		}
		t.stopped = true
		t.f()
		fired++
	}
	return fired
}

func (s *fakeScheduler) pending(d time.Duration) int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && t.d == d {
			n++
		}
	}
	return n
}

type fakeHost struct {
	disconnected []*client.Client
	online       map[string]*client.Client
	delivered    []string
	relayed      []string
}

func (h *fakeHost) Disconnect(c *client.Client) {
	h.disconnected = append(h.disconnected, c)
	c.RoomID = ""
	c.Close()
}

func (h *fakeHost) SendPrivateMessage(name, msg string) bool {
	if _, ok := h.online[client.FoldName(name)]; !ok {
		return false
	}
	h.delivered = append(h.delivered, name+": "+msg)
	return true
}

func (h *fakeHost) RelayChat(msg string, isAdmin bool) {
	h.relayed = append(h.relayed, fmt.Sprintf("%s admin=%v", msg, isAdmin))
}

type fakeAccounts struct {
	results []string
}

func (a *fakeAccounts) Rank(name string) int { return 42 }

func (a *fakeAccounts) FullScore(name string) (int, int) { return 1010, 990 }

func (a *fakeAccounts) RecordResult(winner, loser string, match bool) error {
	a.results = append(a.results, fmt.Sprintf("%s>%s match=%v", winner, loser, match))
	return nil
}

type fakeDuel struct {
	host    DuelHost
	players []string
	packets [][]byte
	closed  bool
}

func (d *fakeDuel) HandlePacket(pos uint8, payload []byte) {
	d.packets = append(d.packets, payload)
}

func (d *fakeDuel) Close() { d.closed = true }

type fakeEngine struct {
	duels []*fakeDuel
	err   error
}

func (e *fakeEngine) StartDuel(host DuelHost, info packets.HostInfo, players []string) (Duel, error) {
	if e.err != nil {
		return nil, e.err
	}
	d := &fakeDuel{host: host, players: players}
	e.duels = append(e.duels, d)
	return d, nil
}

type testEnv struct {
	manager   *Manager
	host      *fakeHost
	accounts  *fakeAccounts
	engine    *fakeEngine
	scheduler *fakeScheduler
	nextID    uint64
}

func testConfig() *core.Config {
	cfg := &core.Config{}
	cfg.Lobby.Banner = "Checkmate Server!"
	cfg.Lobby.ServerName = "CheckMate"
	cfg.Lobby.MinSecondsWaiting = 4
	cfg.Lobby.MaxSecondsWaiting = 6
	cfg.Duel.Rule = 2
	cfg.Duel.DrawCount = 1
	cfg.Duel.StartHand = 5
	cfg.Duel.TimeLimit = 120
	cfg.Duel.StartLP = 8000
	cfg.Duel.LFList = 1
	cfg.Duel.WaitingTimeout = testWaitingTimeout
	cfg.Duel.UserTimeout = testUserTimeout
	cfg.Duel.ReconnectTimeout = testReconnectTimeout
	cfg.Duel.ZombieTimeout = testZombieTimeout
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		host:      &fakeHost{online: make(map[string]*client.Client)},
		accounts:  &fakeAccounts{},
		engine:    &fakeEngine{},
		scheduler: &fakeScheduler{},
	}
	env.manager = NewManager(testConfig(), logger, Dependencies{
		Host:      env.host,
		Accounts:  env.accounts,
		Engine:    env.engine,
		Lists:     lflist.Lists{{Name: "TCG", Hash: 0x7a17c709}},
		Scheduler: env.scheduler,
	})
	return env
}

// peer is a client whose outbound frames are collected from the other end of a pipe.
type peer struct {
	*client.Client
	frames chan []byte
}

func (env *testEnv) newPeer(t *testing.T, name string, state client.LoginState, score int) *peer {
	t.Helper()
	local, remote := net.Pipe()
	env.nextID++
	c := client.NewClient(env.nextID, local, codec.MaxPayloadSize)
	c.Name = name
	c.LoginState = state
	c.RankScore = score
	c.MatchScore = score

	p := &peer{Client: c, frames: make(chan []byte, 4096)}
	go func() {
		decoder := codec.NewDecoder(codec.MaxPayloadSize)
		buf := make([]byte, 4096)
		for {
			n, err := remote.Read(buf)
			decoder.Feed(buf[:n])
			for {
				frame, derr := decoder.Next()
				if derr != nil || frame == nil {
					break
				}
				p.frames <- frame
			}
			if err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		c.Close()
		_ = remote.Close()
	})
	if state.Named() {
		env.host.online[client.FoldName(name)] = c
	}
	return p
}

// queued logs p in and places it in the waiting room, discarding the welcome frames.
func (env *testEnv) queued(t *testing.T, name string, score int) *peer {
	t.Helper()
	p := env.newPeer(t, name, client.Authenticated, score)
	if !env.manager.InsertInWaitingRoom(p.Client) {
		t.Fatalf("failed to queue %s", name)
	}
	p.drain()
	return p
}

func (p *peer) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-p.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a frame to %s", p.Name)
		return nil
	}
}

// nextOf skips frames until one with opcode arrives.
func (p *peer) nextOf(t *testing.T, opcode uint8) []byte {
	t.Helper()
	for {
		if f := p.next(t); f[0] == opcode {
			return f
		}
	}
}

// drain discards frames until none arrive for a short while.
func (p *peer) drain() {
	for {
		select {
		case <-p.frames:
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func decodeChat(t *testing.T, frame []byte) (uint16, string) {
	t.Helper()
	if frame[0] != packets.STOCChatType || len(frame) < 3 {
		t.Fatalf("expected a chat frame, got %v", frame)
	}
	return binary.LittleEndian.Uint16(frame[1:3]), bytes.DecodeUtf16(frame[3:])
}

func decodePlayerEnter(t *testing.T, frame []byte) (string, uint8) {
	t.Helper()
	var pkt packets.PlayerEnter
	if frame[0] != packets.STOCPlayerEnterType {
		t.Fatalf("expected a player enter frame, got %#x", frame[0])
	}
	if err := bytes.StructFromBytes(frame[1:], &pkt); err != nil {
		t.Fatalf("decoding player enter: %v", err)
	}
	return bytes.Utf16ToString(pkt.Name[:]), pkt.Pos
}

func chatPayload(msg string) []byte {
	return append([]byte{packets.CTOSChatType}, bytes.ConvertToUtf16(msg+"\x00")...)
}

var errEngine = errors.New("engine unavailable")
