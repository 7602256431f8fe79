package server

import (
	"time"

	"github.com/checkmate-server/lobby/internal/room"
)

// loopTimer fires its callback on the event loop. stopped is only touched by the loop.
type loopTimer struct {
	timer   *time.Timer
	stopped bool
}

func (t *loopTimer) Stop() {
	t.stopped = true
	t.timer.Stop()
}

// AfterFunc arms a room timer. A timer stopped after it expired but before the
// loop got to it does not fire.
func (s *Server) AfterFunc(d time.Duration, f func()) room.Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		s.post(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			f()
		})
	})
	return t
}
