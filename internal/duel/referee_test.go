package duel

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/checkmate-server/lobby/internal/packets"
)

type recordingHost struct {
	sent      []uint8
	victories []int
}

func (h *recordingHost) SendTo(pos uint8, opcode uint8, body []byte) {}

func (h *recordingHost) SendAll(opcode uint8, body []byte) {
	h.sent = append(h.sent, opcode)
}

func (h *recordingHost) Victory(team int) {
	h.victories = append(h.victories, team)
}

func newReferee() *Referee {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Referee{Logger: logger}
}

func TestReferee_StartDuel(t *testing.T) {
	host := &recordingHost{}
	if _, err := newReferee().StartDuel(host, packets.HostInfo{Mode: uint8(packets.ModeSingle)}, []string{"Yugi", "Kaiba"}); err != nil {
		t.Fatalf("StartDuel() error = %v", err)
	}
	if diff := cmp.Diff([]uint8{packets.STOCDuelStartType}, host.sent); diff != "" {
		t.Errorf("unexpected packets; diff:\n%s", diff)
	}

	if _, err := newReferee().StartDuel(host, packets.HostInfo{Mode: uint8(packets.ModeTag)}, []string{"Yugi", "Kaiba"}); err == nil {
		t.Error("expected a tag duel with two players to be refused")
	}
}

func TestReferee_Surrender(t *testing.T) {
	tests := []struct {
		name    string
		mode    packets.Mode
		players []string
		pos     uint8
		want    int
	}{
		{"single first seat", packets.ModeSingle, []string{"Yugi", "Kaiba"}, 0, 1},
		{"single second seat", packets.ModeSingle, []string{"Yugi", "Kaiba"}, 1, 0},
		{"tag partner", packets.ModeTag, []string{"Yugi", "Joey", "Kaiba", "Mokuba"}, 1, 1},
		{"tag opponent", packets.ModeTag, []string{"Yugi", "Joey", "Kaiba", "Mokuba"}, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &recordingHost{}
			duel, err := newReferee().StartDuel(host, packets.HostInfo{Mode: uint8(tt.mode)}, tt.players)
			if err != nil {
				t.Fatalf("StartDuel() error = %v", err)
			}

			duel.HandlePacket(tt.pos, []byte{packets.CTOSResponseType, 0})
			duel.HandlePacket(tt.pos, []byte{packets.CTOSSurrenderType})
			if diff := cmp.Diff([]int{tt.want}, host.victories); diff != "" {
				t.Errorf("unexpected victories; diff:\n%s", diff)
			}

			duel.Close()
			duel.HandlePacket(tt.pos, []byte{packets.CTOSSurrenderType})
			if len(host.victories) != 1 {
				t.Error("expected a closed duel to ignore packets")
			}
		})
	}
}
