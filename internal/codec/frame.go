// Package codec frames the duel client protocol: every packet is preceded by
// a two byte little endian length of the payload that follows it.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/checkmate-server/lobby/internal/core/bytes"
)

// HeaderSize is the size of the length prefix.
const HeaderSize = 2

// MaxPayloadSize is the largest payload the length prefix can describe.
const MaxPayloadSize = 0xffff

// ErrFrameTooLarge is returned when a peer declares a payload larger than
// the decoder accepts. The stream cannot be resynchronized afterwards.
var ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")

// Decoder reassembles frames from a byte stream. Bytes can arrive split at
// any boundary; a frame is only returned once it has been fully buffered.
type Decoder struct {
	buf        []byte
	maxPayload int
}

// NewDecoder returns a Decoder rejecting payloads above maxPayload bytes.
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 || maxPayload > MaxPayloadSize {
		maxPayload = MaxPayloadSize
	}
	return &Decoder{maxPayload: maxPayload}
}

// Feed appends newly read bytes to the reassembly buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the payload of the next complete frame, or nil if more bytes
// are needed. Zero length frames are skipped. The returned slice is owned by
// the caller.
func (d *Decoder) Next() ([]byte, error) {
	for {
		if len(d.buf) < HeaderSize {
			return nil, nil
		}

		size := int(binary.LittleEndian.Uint16(d.buf))
		if size > d.maxPayload {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, d.maxPayload)
		}
		if size == 0 {
			d.consume(HeaderSize)
			continue
		}
		if len(d.buf) < HeaderSize+size {
			return nil, nil
		}

		payload := make([]byte, size)
		copy(payload, d.buf[HeaderSize:HeaderSize+size])
		d.consume(HeaderSize + size)
		return payload, nil
	}
}

func (d *Decoder) consume(n int) {
	remaining := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}

// Encode prefixes opcode and body with their combined length.
func Encode(opcode uint8, body []byte) ([]byte, error) {
	size := 1 + len(body)
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, size)
	}

	frame := make([]byte, HeaderSize+size)
	binary.LittleEndian.PutUint16(frame, uint16(size))
	frame[HeaderSize] = opcode
	copy(frame[HeaderSize+1:], body)
	return frame, nil
}

// EncodeStruct serializes pkt field by field and frames it behind opcode.
func EncodeStruct(opcode uint8, pkt interface{}) ([]byte, error) {
	body, _ := bytes.BytesFromStruct(pkt)
	return Encode(opcode, body)
}
