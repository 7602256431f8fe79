package client

import (
	"errors"
	"net"
	"time"

	"github.com/checkmate-server/lobby/internal/codec"
	"github.com/checkmate-server/lobby/internal/packets"
)

const (
	sendQueueSize = 512
	writeTimeout  = 30 * time.Second
)

var (
	// ErrSendQueueFull means the peer is not reading fast enough.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrClosed is returned when sending to a client that has been closed.
	ErrClosed = errors.New("client closed")
)

// Client is the session of one connected duel client. Everything except the
// writer goroutine is owned by the server loop and must not be touched from
// other goroutines.
type Client struct {
	ID uint64

	connection net.Conn
	ipAddr     string
	port       string

	Name       string
	Country    string
	LoginState LoginState
	// Chat color resolved by the account service.
	Color int
	// Seat in the current room, packets.UnassignedType when not seated.
	Type       uint8
	RankScore  int
	MatchScore int
	// Identifier of the room holding the client, empty when unassigned.
	RoomID string

	// Reassembles inbound frames.
	Decoder *codec.Decoder

	outbound chan []byte
	closed   bool
	flushed  chan struct{}
}

// NewClient wraps connection and starts the goroutine writing queued packets to it.
func NewClient(id uint64, connection net.Conn, maxPacketSize int) *Client {
	ip, port := splitAddr(connection.RemoteAddr())
	c := &Client{
		ID:         id,
		connection: connection,
		ipAddr:     ip,
		port:       port,
		LoginState: NotEntered,
		Type:       packets.UnassignedType,
		Decoder:    codec.NewDecoder(maxPacketSize),
		outbound:   make(chan []byte, sendQueueSize),
		flushed:    make(chan struct{}),
	}
	go c.transmit()
	return c
}

func splitAddr(addr net.Addr) (string, string) {
	if addr == nil {
		return "", ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), ""
	}
	return host, port
}

func (c *Client) IPAddr() string { return c.ipAddr }

// IsAdmin reports whether the account service gave c a non-default chat color.
func (c *Client) IsAdmin() bool { return c.Color != 0 }
func (c *Client) Port() string   { return c.port }

// SetIPAddr replaces the address reported by the socket, used when a trusted
// proxy forwards the real address of the player.
func (c *Client) SetIPAddr(ip string) { c.ipAddr = ip }

// Read consumes the available bytes directly from the client's connection.
func (c *Client) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Send serializes packet behind opcode and queues it.
func (c *Client) Send(opcode uint8, packet interface{}) error {
	frame, err := codec.EncodeStruct(opcode, packet)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// SendBody queues a packet whose body has already been encoded.
func (c *Client) SendBody(opcode uint8, body []byte) error {
	frame, err := codec.Encode(opcode, body)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// SendRaw queues data as-is, without a length prefix.
func (c *Client) SendRaw(data []byte) error {
	b := make([]byte, len(data))
	copy(b, data)
	return c.enqueue(b)
}

func (c *Client) enqueue(data []byte) error {
	if c.closed {
		return ErrClosed
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops accepting packets. Everything queued so far is written before
// the connection is released.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbound)
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed }

// Flushed is closed once the writer has drained the queue and closed the connection.
func (c *Client) Flushed() <-chan struct{} { return c.flushed }

// transmit writes queued packets until the queue is closed. A failed write
// closes the connection, which in turn ends the reader for this client.
func (c *Client) transmit() {
	defer close(c.flushed)

	failed := false
	for data := range c.outbound {
		if failed {
			continue
		}
		_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := c.connection.Write(data); err != nil {
			failed = true
			_ = c.connection.Close()
		}
	}
	_ = c.connection.Close()
}
