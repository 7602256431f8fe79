package client

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newPipeClient(t *testing.T, r *Registry, name string) *Client {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })
	c := NewClient(r.NextID(), server, 1024)
	c.Name = name
	t.Cleanup(c.Close)
	return c
}

func TestFoldName(t *testing.T) {
	tests := map[string]string{
		"Kaiba":    "kaiba",
		" KAIBA  ": "kaiba",
		"ÉLODIE":   "élodie",
	}
	for in, want := range tests {
		if got := FoldName(in); got != want {
			t.Errorf("FoldName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := newPipeClient(t, r, "Joey")
	b := newPipeClient(t, r, "Mai")
	r.Add(a)
	r.Add(b)

	if r.Len() != 2 {
		t.Fatalf("expected 2 clients, got %d", r.Len())
	}
	if diff := cmp.Diff([]uint64{a.ID, b.ID}, ids(r.All())); diff != "" {
		t.Errorf("All() returned unexpected clients; diff:\n%s", diff)
	}

	r.Index(a)
	if found := r.FindByName("JOEY"); found != a {
		t.Errorf("expected FindByName to be case-insensitive")
	}
	if found := r.FindByName("mai"); found != nil {
		t.Errorf("expected unindexed client to be unreachable by name")
	}

	if !r.Remove(a) {
		t.Error("expected Remove to report a registered client")
	}
	if r.Remove(a) {
		t.Error("expected a second Remove to be a no-op")
	}
	if r.FindByName("joey") != nil {
		t.Error("expected Remove to clear the name index")
	}
	if !r.Has(b) || r.Len() != 1 {
		t.Error("expected the remaining client to stay registered")
	}
}

func TestRegistry_UnindexKeepsNewerLogin(t *testing.T) {
	r := NewRegistry()
	older := newPipeClient(t, r, "Yugi")
	newer := newPipeClient(t, r, "yugi")
	r.Add(older)
	r.Add(newer)
	r.Index(older)
	r.Index(newer)

	r.Unindex(older)
	if r.FindByName("Yugi") != newer {
		t.Error("expected the newer login to remain indexed")
	}
}

func TestLoginState(t *testing.T) {
	for _, s := range []LoginState{NotEntered, WaitingJoin} {
		if s.Resolved() {
			t.Errorf("%s should not be resolved", s)
		}
	}
	for _, s := range []LoginState{NoPassword, Authenticated, InvalidUsername, InvalidPassword, Unranked} {
		if !s.Resolved() {
			t.Errorf("%s should be resolved", s)
		}
	}
	if !NoPassword.Named() || !Authenticated.Named() || Unranked.Named() {
		t.Error("unexpected Named() result")
	}
}

func ids(clients []*Client) []uint64 {
	var out []uint64
	for _, c := range clients {
		out = append(out, c.ID)
	}
	return out
}
