// Package control implements the byte stream shared with the supervising
// process. Messages are fixed-size structs identified by their first byte.
package control

import (
	"errors"
	"fmt"

	"github.com/checkmate-server/lobby/internal/core/bytes"
)

// Message types.
const (
	ChatType  uint8 = 1
	StatsType uint8 = 2
)

// TextLength is the capacity of a chat line in UTF-16 code units.
const TextLength = 256

// ErrUnknownMessage means the stream carries a type this server does not know,
// after which message boundaries cannot be recovered.
var ErrUnknownMessage = errors.New("unknown control message")

// Chat carries a line to broadcast to every room.
type Chat struct {
	Type    uint8
	IsAdmin bool
	Padding uint16
	Text    [TextLength]uint16
}

// Stats reports the load of the server.
type Stats struct {
	Type    uint8
	Alive   bool
	Padding uint16
	Rooms   uint32
	Players uint32
}

func NewChat(text string, isAdmin bool) *Chat {
	msg := &Chat{Type: ChatType, IsAdmin: isAdmin}
	bytes.CopyUtf16(msg.Text[:], text)
	return msg
}

func (c *Chat) Message() string {
	return bytes.Utf16ToString(c.Text[:])
}

func NewStats(rooms, players int, alive bool) *Stats {
	return &Stats{Type: StatsType, Alive: alive, Rooms: uint32(rooms), Players: uint32(players)}
}

// Encode serializes a *Chat or *Stats.
func Encode(msg interface{}) []byte {
	b, _ := bytes.BytesFromStruct(msg)
	return b
}

var sizes = map[uint8]int{
	ChatType:  binarySize(&Chat{}),
	StatsType: binarySize(&Stats{}),
}

func binarySize(msg interface{}) int {
	_, n := bytes.BytesFromStruct(msg)
	return n
}

// Decoder splits a control stream into messages.
type Decoder struct {
	buf []byte
}

func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Next returns the next complete message as *Chat or *Stats, or nil if more
// bytes are needed.
func (d *Decoder) Next() (interface{}, error) {
	if len(d.buf) == 0 {
		return nil, nil
	}

	msgType := d.buf[0]
	size, ok := sizes[msgType]
	if !ok {
		return nil, fmt.Errorf("%w: type %#x", ErrUnknownMessage, msgType)
	}
	if len(d.buf) < size {
		return nil, nil
	}

	var msg interface{}
	switch msgType {
	case ChatType:
		msg = &Chat{}
	case StatsType:
		msg = &Stats{}
	}
	if err := bytes.StructFromBytes(d.buf[:size], msg); err != nil {
		return nil, err
	}

	remaining := copy(d.buf, d.buf[size:])
	d.buf = d.buf[:remaining]
	return msg, nil
}
