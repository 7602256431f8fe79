package server

import "sync"

// gate pauses the acceptor while the server is at capacity.
type gate struct {
	mu     sync.Mutex
	open   bool
	resume chan struct{}
}

func newGate() *gate {
	return &gate{open: true, resume: make(chan struct{})}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.resume = make(chan struct{})
	}
}

func (g *gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.resume)
	}
}

func (g *gate) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// wait blocks until the gate is open. It returns false if done closes first.
func (g *gate) wait(done <-chan struct{}) bool {
	g.mu.Lock()
	if g.open {
		g.mu.Unlock()
		return true
	}
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
		return true
	case <-done:
		return false
	}
}
