package client

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/checkmate-server/lobby/internal/packets"
)

func newTestListener(t *testing.T) (*net.TCPListener, *net.TCPAddr) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("error initializing test listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener, listener.Addr().(*net.TCPAddr)
}

func newTestConnection(t *testing.T, addr *net.TCPAddr) *net.TCPConn {
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("error initializing test connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newConnectedClient(t *testing.T) (*Client, *net.TCPConn) {
	serverListener, addr := newTestListener(t)
	// Connect to the server as if from a duel client.
	conn := newTestConnection(t, addr)

	clientConn, err := serverListener.AcceptTCP()
	if err != nil {
		t.Fatalf("error initializing client connection: %s", err)
	}
	return NewClient(1, clientConn, 1024), conn
}

func TestNewClient(t *testing.T) {
	c, _ := newConnectedClient(t)
	defer c.Close()

	if c.IPAddr() != "127.0.0.1" {
		t.Errorf("expected IP 127.0.0.1, got %s", c.IPAddr())
	}
	if c.Port() == "" {
		t.Error("expected the remote port to be set")
	}
	if c.LoginState != NotEntered {
		t.Errorf("expected login state %s, got %s", NotEntered, c.LoginState)
	}
	if c.Type != packets.UnassignedType {
		t.Errorf("expected unassigned type, got %d", c.Type)
	}
}

func TestClient_Read(t *testing.T) {
	c, conn := newConnectedClient(t)
	defer c.Close()

	sent := []byte{2, 0, packets.CTOSReadyType, 0}
	if _, err := conn.Write(sent); err != nil {
		t.Fatalf("error writing to test connection: %s", err)
	}

	buf := make([]byte, len(sent))
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("Read() returned an unexpected error: %s", err)
	}
	if diff := cmp.Diff(sent, buf); diff != "" {
		t.Fatalf("Read() result did not match expected; diff:\n%s", diff)
	}
}

func TestClient_SendFlushesOnClose(t *testing.T) {
	c, conn := newConnectedClient(t)

	if err := c.Send(packets.STOCTypeChangeType, &packets.TypeChange{Type: 0x10}); err != nil {
		t.Fatalf("Send() returned an unexpected error: %s", err)
	}
	if err := c.SendBody(packets.STOCChatType, []byte{8, 0, 0, 0}); err != nil {
		t.Fatalf("SendBody() returned an unexpected error: %s", err)
	}
	if err := c.SendRaw([]byte("pong\x00")); err != nil {
		t.Fatalf("SendRaw() returned an unexpected error: %s", err)
	}
	c.Close()

	select {
	case <-c.Flushed():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the client to flush")
	}

	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("error reading from test connection: %s", err)
	}
	want := []byte{
		2, 0, packets.STOCTypeChangeType, 0x10,
		5, 0, packets.STOCChatType, 8, 0, 0, 0,
		'p', 'o', 'n', 'g', 0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bytes read from test connection did not match expected; diff:\n%s", diff)
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	c, _ := newConnectedClient(t)
	c.Close()
	c.Close()

	if err := c.SendRaw([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if !c.Closed() {
		t.Error("expected Closed() to be true")
	}
}

func TestClient_SendQueueFull(t *testing.T) {
	server, peer := net.Pipe()
	defer peer.Close()
	c := NewClient(1, server, 1024)
	defer c.Close()

	// Nothing reads from peer so the writer blocks on the first packet and
	// the queue eventually fills up.
	var err error
	for i := 0; i < sendQueueSize+2 && err == nil; i++ {
		err = c.SendRaw([]byte{byte(i)})
	}
	if !errors.Is(err, ErrSendQueueFull) {
		t.Errorf("expected ErrSendQueueFull, got %v", err)
	}
}
