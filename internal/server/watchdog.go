package server

import (
	"fmt"
	"time"
)

// watchdog aborts the process when the event loop stops beating for longer
// than the configured grace period.
func (s *Server) watchdog() {
	grace := s.Config.Lobby.WatchdogGrace
	if grace <= 0 {
		return
	}

	t := time.NewTicker(grace / 4)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			stalled := time.Since(time.Unix(0, s.heartbeat.Load()))
			if stalled > grace {
				s.abort(fmt.Sprintf("event loop stalled for %v", stalled.Round(time.Millisecond)))
				return
			}
		}
	}
}
