package packets

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/checkmate-server/lobby/internal/core/bytes"
)

// Server to client packet types.
const (
	STOCGameMsgType      = 0x01
	STOCErrorMsgType     = 0x02
	STOCSelectHandType   = 0x03
	STOCSelectTPType     = 0x04
	STOCHandResultType   = 0x05
	STOCTPResultType     = 0x06
	STOCChangeSideType   = 0x07
	STOCWaitingSideType  = 0x08
	STOCCreateGameType   = 0x11
	STOCJoinGameType     = 0x12
	STOCTypeChangeType   = 0x13
	STOCLeaveGameType    = 0x14
	STOCDuelStartType    = 0x15
	STOCDuelEndType      = 0x16
	STOCReplayType       = 0x17
	STOCTimeLimitType    = 0x18
	STOCChatType         = 0x19
	STOCPlayerEnterType  = 0x20
	STOCPlayerChangeType = 0x21
	STOCWatchChangeType  = 0x22
)

// Status values carried in the low nibble of PLAYER_CHANGE.
const (
	PlayerChangeObserve  uint8 = 0x08
	PlayerChangeReady    uint8 = 0x09
	PlayerChangeNotReady uint8 = 0x0a
	PlayerChangeLeave    uint8 = 0x0b
)

// Chat senders above the seat numbers are rendered as system lines.
const (
	ChatSystem      uint16 = 8
	ChatSystemError uint16 = 9
	ChatSystemShout uint16 = 10
)

// Error kinds for ERROR_MSG.
const (
	ErrorMsgJoin uint8 = 0x01
	ErrorMsgDeck uint8 = 0x02
	ErrorMsgSide uint8 = 0x03
	ErrorMsgVer  uint8 = 0x04
)

// GameJoined acknowledges a JOIN_GAME with the rules of the room.
type GameJoined struct {
	Info HostInfo
}

// TypeChange tells the client which seat it occupies.
type TypeChange struct {
	Type uint8
}

// PlayerEnter places a name in one of the roster slots.
type PlayerEnter struct {
	Name    [NameLength]uint16
	Pos     uint8
	Padding uint8
}

// PlayerChange updates the status of a roster slot.
type PlayerChange struct {
	Status uint8
}

// WatchChange reports the number of spectators.
type WatchChange struct {
	Count uint16
}

// ErrorMsg reports a room level error to the client.
type ErrorMsg struct {
	Msg     uint8
	Padding [3]uint8
	Code    uint32
}

// DuelEnd has no body.
type DuelEnd struct{}

// NewPlayerEnter builds a PLAYER_ENTER for name at roster position pos.
func NewPlayerEnter(name string, pos uint8) *PlayerEnter {
	pkt := &PlayerEnter{Pos: pos}
	bytes.CopyUtf16(pkt.Name[:], name)
	return pkt
}

// PlayerStatus combines a seat and a PlayerChange* value.
func PlayerStatus(pos uint8, status uint8) uint8 {
	return pos<<4 | status
}

// ChatBody encodes the body of a CHAT packet: the sender followed by the
// NUL terminated message, truncated to ChatLength code units.
func ChatBody(sender uint16, msg string) []byte {
	encoded := bytes.TruncateUtf16(utf16.Encode([]rune(msg)), ChatLength-1)
	body := make([]byte, 2+2*(len(encoded)+1))
	binary.LittleEndian.PutUint16(body, sender)
	for i, v := range encoded {
		binary.LittleEndian.PutUint16(body[2+2*i:], v)
	}
	return body
}
