package packets

import (
	"fmt"

	"github.com/checkmate-server/lobby/internal/core/bytes"
)

// Client to server packet types.
const (
	CTOSResponseType    = 0x01
	CTOSUpdateDeckType  = 0x02
	CTOSHandResultType  = 0x03
	CTOSTPResultType    = 0x04
	CTOSPlayerInfoType  = 0x10
	CTOSCreateGameType  = 0x11
	CTOSJoinGameType    = 0x12
	CTOSLeaveGameType   = 0x13
	CTOSSurrenderType   = 0x14
	CTOSTimeConfirmType = 0x15
	CTOSChatType        = 0x16
	CTOSToDuelistType   = 0x20
	CTOSToObserverType  = 0x21
	CTOSReadyType       = 0x22
	CTOSNotReadyType    = 0x23
	CTOSKickType        = 0x24
	CTOSStartType       = 0x25
)

// ChatLength is the largest chat line, terminator included, accepted or sent.
const ChatLength = 256

// PlayerInfo is the first packet a client sends and carries its display name.
type PlayerInfo struct {
	Name [NameLength]uint16
}

// JoinGame is sent by the client to enter a room. Pass holds the room password
// field, which this server reads as the account password.
type JoinGame struct {
	Version uint16
	Align   uint16
	GameID  uint32
	Pass    [NameLength]uint16
}

// DecodePlayerInfo parses the body of a PLAYER_INFO packet (opcode excluded).
func DecodePlayerInfo(body []byte) (*PlayerInfo, error) {
	pkt := &PlayerInfo{}
	if err := bytes.StructFromBytes(body, pkt); err != nil {
		return nil, fmt.Errorf("decoding PLAYER_INFO: %w", err)
	}
	return pkt, nil
}

// DecodeJoinGame parses the body of a JOIN_GAME packet (opcode excluded).
func DecodeJoinGame(body []byte) (*JoinGame, error) {
	pkt := &JoinGame{}
	if err := bytes.StructFromBytes(body, pkt); err != nil {
		return nil, fmt.Errorf("decoding JOIN_GAME: %w", err)
	}
	return pkt, nil
}

// DecodeChat extracts the text of a CHAT packet body, ignoring anything
// past ChatLength code units.
func DecodeChat(body []byte) string {
	if len(body) > ChatLength*2 {
		body = body[:ChatLength*2]
	}
	return bytes.DecodeUtf16(body)
}
