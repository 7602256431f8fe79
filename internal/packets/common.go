// Packets and constants shared by both directions of the duel client protocol.
package packets

import "fmt"

// NameLength is the capacity, in UTF-16 code units, of every player name
// field on the wire. The last unit is always the terminating NUL.
const NameLength = 20

// Seat numbers reported in TYPE_CHANGE, PLAYER_ENTER and PLAYER_CHANGE.
const (
	PlayerType1    uint8 = 0
	PlayerType2    uint8 = 1
	PlayerType3    uint8 = 2
	PlayerType4    uint8 = 3
	PlayerType5    uint8 = 4
	PlayerType6    uint8 = 5
	ObserverType   uint8 = 7
	UnassignedType uint8 = 0xff
)

// Mode selects the kind of duel played in a room.
type Mode uint8

const (
	ModeSingle Mode = 0x00
	ModeMatch  Mode = 0x01
	ModeTag    Mode = 0x02
	// ModeHandicap is a flag combined with one of the modes above.
	ModeHandicap Mode = 0x10
	// ModeAny lets matchmaking pick any open room.
	ModeAny Mode = 0xff
)

// Base strips the handicap flag.
func (m Mode) Base() Mode {
	if m == ModeAny {
		return m
	}
	return m &^ ModeHandicap
}

// Players is the number of duelists a room of this mode seats.
func (m Mode) Players() int {
	if m.Base() == ModeTag {
		return 4
	}
	return 2
}

// Matches reports whether a room created with mode m satisfies a request for want.
func (m Mode) Matches(want Mode) bool {
	return want == ModeAny || m == want
}

func (m Mode) String() string {
	var name string
	switch m.Base() {
	case ModeSingle:
		name = "single"
	case ModeMatch:
		name = "match"
	case ModeTag:
		name = "tag"
	case ModeAny:
		return "any"
	default:
		return fmt.Sprintf("mode(%#x)", uint8(m))
	}
	if m&ModeHandicap != 0 {
		name += "+handicap"
	}
	return name
}

// HostInfo describes the rules of a room and is echoed back in JOIN_GAME.
type HostInfo struct {
	LFList         uint32
	Rule           uint8
	Mode           uint8
	EnablePriority bool
	NoCheckDeck    bool
	NoShuffleDeck  bool
	Padding        [3]uint8
	StartLP        uint32
	StartHand      uint8
	DrawCount      uint8
	TimeLimit      uint16
}
