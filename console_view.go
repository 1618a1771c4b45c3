package main

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bmwatch/session"
)

// consoleView subscribes to tracker notifications and renders them to the
// dashboard panes (or plain log lines when no terminal UI is available).
// It keeps its own copy of the live set: the tracker invokes listeners
// synchronously, so the view must never call back into the tracker.
type consoleView struct {
	dash   *dashboard
	fanout *logFanout

	mu    sync.Mutex
	live  map[string]session.Session
	order []string

	completed atomic.Uint64
	now       func() time.Time
}

func newConsoleView(dash *dashboard, fanout *logFanout) *consoleView {
	return &consoleView{
		dash:   dash,
		fanout: fanout,
		live:   make(map[string]session.Session),
		now:    time.Now,
	}
}

func (v *consoleView) SessionActive(s session.Session) {
	v.mu.Lock()
	if _, exists := v.live[s.ID]; !exists {
		v.order = append(v.order, s.ID)
	}
	v.live[s.ID] = s
	lines := v.liveLinesLocked()
	v.mu.Unlock()

	if v.dash != nil {
		v.dash.SetLive(lines)
		return
	}
	log.Printf("TX start: %s", formatLiveLine(s, v.now()))
}

func (v *consoleView) SessionUpdated(s session.Session) {
	v.mu.Lock()
	if _, exists := v.live[s.ID]; !exists {
		v.order = append(v.order, s.ID)
	}
	v.live[s.ID] = s
	lines := v.liveLinesLocked()
	v.mu.Unlock()

	if v.dash != nil {
		v.dash.SetLive(lines)
	}
}

func (v *consoleView) SessionCompleted(s session.Session) {
	v.completed.Add(1)
	line := formatCallLine(s)
	if v.dash != nil {
		v.dash.AppendCompleted(line)
	} else {
		log.Printf("TX end: %s", line)
	}
	// Completed calls always land in the daily file whether or not the
	// dashboard showed them.
	v.fanout.WriteFileOnlyLine("CALL "+line, v.now())
}

func (v *consoleView) SessionRemoved(sessionID string) {
	v.mu.Lock()
	if _, exists := v.live[sessionID]; exists {
		delete(v.live, sessionID)
		for i, id := range v.order {
			if id == sessionID {
				v.order = append(v.order[:i], v.order[i+1:]...)
				break
			}
		}
	}
	lines := v.liveLinesLocked()
	v.mu.Unlock()

	if v.dash != nil {
		v.dash.SetLive(lines)
	}
}

// CompletedCount reports calls surfaced since startup.
func (v *consoleView) CompletedCount() uint64 {
	return v.completed.Load()
}

// RefreshLive re-renders the live pane so elapsed times tick even when no
// events arrive. Called from the stats ticker.
func (v *consoleView) RefreshLive() {
	v.mu.Lock()
	lines := v.liveLinesLocked()
	v.mu.Unlock()
	if v.dash != nil {
		v.dash.SetLive(lines)
	}
}

func (v *consoleView) liveLinesLocked() []string {
	now := v.now()
	lines := make([]string, 0, len(v.order))
	// Newest first, so a busy feed pushes older carriers down the pane.
	for i := len(v.order) - 1; i >= 0; i-- {
		s, ok := v.live[v.order[i]]
		if !ok {
			continue
		}
		lines = append(lines, formatLiveLine(s, now))
	}
	return lines
}

func formatLiveLine(s session.Session, now time.Time) string {
	elapsed := now.Unix() - s.StartEpoch
	if elapsed < 0 {
		elapsed = 0
	}
	var b strings.Builder
	fmt.Fprintf(&b, "TG %-6d %-10s", s.Talkgroup, s.Callsign)
	if label := displayLabel(s); label != "" {
		fmt.Fprintf(&b, " (%s)", label)
	}
	fmt.Fprintf(&b, "  %s", formatElapsed(elapsed))
	if s.LinkName != "" {
		fmt.Fprintf(&b, "  via %s", s.LinkName)
	}
	return b.String()
}

func formatCallLine(s session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TG %-6d %-10s", s.Talkgroup, s.Callsign)
	if label := displayLabel(s); label != "" {
		fmt.Fprintf(&b, " (%s)", label)
	}
	if s.HasDuration {
		fmt.Fprintf(&b, "  %s", formatElapsed(s.DurationSeconds))
	}
	if s.AutoCompleted {
		b.WriteString("  [timeout]")
	}
	return b.String()
}

// displayLabel prefers the operator-supplied alias over the network name.
func displayLabel(s session.Session) string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.DisplayName
}

func formatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}
