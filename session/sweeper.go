package session

import (
	"log"
	"sort"
	"time"
)

// StartSweeper launches the eviction and staleness sweep on its own ticker.
// The upstream feed guarantees neither Stop delivery nor ordering, so without
// a time-based and a count-based bound a long-running process grows without
// limit. Close stops the loop.
func (t *Tracker) StartSweeper() {
	go func() {
		ticker := time.NewTicker(t.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.sweepStop:
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Sweep runs one sweep pass at the current wall-clock time. Exposed so tests
// and shutdown paths can run it deterministically.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.sweepLocked(t.now())
}

// sweepLocked applies, in order: stale marking, max-age auto-completion, the
// soft cap (oldest completed first) and the hard emergency cap.
func (t *Tracker) sweepLocked(now time.Time) {
	// Stale marking is internal bookkeeping only: the session stays in the
	// live view, so ordinary network jitter never flickers the display.
	for _, s := range t.sessions {
		if s.Status == StatusActive && now.Sub(s.LastUpdatedAt) > t.opts.MaxInactivity {
			s.Status = StatusStale
		}
	}

	// Sessions past the maximum age get a synthesized stop: their real Stop
	// is considered lost for good.
	for _, s := range t.sessions {
		if !s.Status.live() || now.Sub(s.CreatedAt) <= t.opts.MaxSessionAge {
			continue
		}
		t.autoCompleteLocked(s, now)
	}

	t.enforceSoftCapLocked()
	t.enforceHardCapLocked()
}

// autoCompleteLocked force-completes a session with a stop taken from the
// wall clock, logging it as an auto-timeout.
func (t *Tracker) autoCompleteLocked(s *Session, now time.Time) {
	t.cancelShowLocked(s.ID)
	stop := now.Unix()
	duration := stop - s.StartEpoch
	if duration < 0 {
		duration = 0
	}
	s.Status = StatusCompleted
	s.StopEpoch = stop
	s.DurationSeconds = duration
	s.HasDuration = true
	s.AutoCompleted = true
	s.LastUpdatedAt = now
	delete(t.activeByTG, s.Talkgroup)

	log.Printf("session: %s on TG%d completed by timeout after %ds", s.ID, s.Talkgroup, duration)
	if s.shown {
		t.listener.SessionRemoved(s.ID)
		s.shown = false
	}
	if !suppressShort(duration, t.opts.MinDuration) {
		t.listener.SessionCompleted(*s)
	}
}

// enforceSoftCapLocked deletes the oldest terminal sessions (by stop time)
// until the store is back under the configured maximum. Terminal sessions
// have already left the live view, so no notifications fire.
func (t *Tracker) enforceSoftCapLocked() {
	excess := len(t.sessions) - t.opts.MaxStored
	if excess <= 0 {
		return
	}
	terminal := make([]*Session, 0, excess)
	for _, s := range t.sessions {
		if s.Status == StatusCompleted || s.Status == StatusCleared {
			terminal = append(terminal, s)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		if terminal[i].StopEpoch != terminal[j].StopEpoch {
			return terminal[i].StopEpoch < terminal[j].StopEpoch
		}
		return terminal[i].LastUpdatedAt.Before(terminal[j].LastUpdatedAt)
	})
	for _, s := range terminal {
		if excess <= 0 {
			return
		}
		t.dropLocked(s)
		excess--
	}
}

// enforceHardCapLocked is the emergency brake: past double the soft cap it
// keeps only the most recently created sessions, live or not, and emits one
// aggregated warning instead of per-item noise.
func (t *Tracker) enforceHardCapLocked() {
	hardCap := t.opts.MaxStored * 2
	if hardCap <= 0 || len(t.sessions) <= hardCap {
		return
	}
	all := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	victims := all[t.opts.MaxStored:]
	for _, s := range victims {
		t.dropLockedNotify(s)
	}
	log.Printf("session: store exceeded hard cap (%d), evicted %d sessions", hardCap, len(victims))
}
