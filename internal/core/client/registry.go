package client

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// FoldName returns the case-insensitive key for a player name.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Registry holds every connected client and an index of logged in names.
type Registry struct {
	clients map[uint64]*Client
	names   map[string]*Client
	lastID  uint64
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uint64]*Client),
		names:   make(map[string]*Client),
	}
}

// NextID hands out a new client identifier.
func (r *Registry) NextID() uint64 {
	r.lastID++
	return r.lastID
}

func (r *Registry) Add(c *Client) {
	r.clients[c.ID] = c
}

// Remove unregisters c and drops its name from the index. Returns false if
// c was not registered.
func (r *Registry) Remove(c *Client) bool {
	if !r.Has(c) {
		return false
	}
	r.Unindex(c)
	delete(r.clients, c.ID)
	return true
}

// Has reports whether this exact client is registered.
func (r *Registry) Has(c *Client) bool {
	registered, ok := r.clients[c.ID]
	return ok && registered == c
}

func (r *Registry) Len() int {
	return len(r.clients)
}

// Index makes c reachable through FindByName. A later login with the same
// name replaces the previous entry.
func (r *Registry) Index(c *Client) {
	r.names[FoldName(c.Name)] = c
}

// Unindex removes c from the name index if it is the indexed client for its name.
func (r *Registry) Unindex(c *Client) {
	key := FoldName(c.Name)
	if indexed, ok := r.names[key]; ok && indexed == c {
		delete(r.names, key)
	}
}

func (r *Registry) FindByName(name string) *Client {
	return r.names[FoldName(name)]
}

// All returns the registered clients ordered by ID.
func (r *Registry) All() []*Client {
	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
