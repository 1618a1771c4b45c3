package main

import (
	"strings"
	"testing"
	"time"

	"bmwatch/session"
)

func testViewSession(id string, tg int, call string) session.Session {
	return session.Session{
		ID:         id,
		Status:     session.StatusActive,
		Talkgroup:  tg,
		Callsign:   call,
		StartEpoch: time.Now().Unix(),
	}
}

func TestConsoleViewTracksLiveSet(t *testing.T) {
	view := newConsoleView(nil, nil)

	view.SessionActive(testViewSession("S1", 91, "K1ABC"))
	view.SessionActive(testViewSession("S2", 10, "N1XYZ"))

	view.mu.Lock()
	lines := view.liveLinesLocked()
	view.mu.Unlock()
	if len(lines) != 2 {
		t.Fatalf("expected 2 live lines, got %v", lines)
	}
	// Newest first.
	if !strings.Contains(lines[0], "N1XYZ") {
		t.Fatalf("expected newest session first, got %q", lines[0])
	}

	view.SessionRemoved("S1")
	view.mu.Lock()
	lines = view.liveLinesLocked()
	view.mu.Unlock()
	if len(lines) != 1 || !strings.Contains(lines[0], "N1XYZ") {
		t.Fatalf("expected only S2 to remain, got %v", lines)
	}

	// Removing an unknown id is a no-op.
	view.SessionRemoved("S9")
	view.mu.Lock()
	n := len(view.live)
	view.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected live set unchanged, got %d entries", n)
	}
}

func TestConsoleViewUpdatedWithoutActiveJoinsLiveSet(t *testing.T) {
	view := newConsoleView(nil, nil)

	view.SessionUpdated(testViewSession("S1", 91, "K1ABC"))

	view.mu.Lock()
	defer view.mu.Unlock()
	if _, ok := view.live["S1"]; !ok {
		t.Fatalf("expected update to register the session")
	}
	if len(view.order) != 1 {
		t.Fatalf("expected one ordered entry, got %v", view.order)
	}
}

func TestConsoleViewCompletedWritesCallLog(t *testing.T) {
	file := &captureSink{}
	fanout := newLogFanout(nil, file)
	view := newConsoleView(nil, fanout)

	s := testViewSession("S1", 91, "K1ABC")
	s.Status = session.StatusCompleted
	s.DurationSeconds = 10
	s.HasDuration = true
	s.Alias = "Op Name"
	view.SessionCompleted(s)

	if got := view.CompletedCount(); got != 1 {
		t.Fatalf("expected completed count 1, got %d", got)
	}
	if len(file.lines) != 1 {
		t.Fatalf("expected one call log line, got %v", file.lines)
	}
	line := file.lines[0]
	if !strings.HasPrefix(line, "CALL ") {
		t.Fatalf("expected CALL prefix, got %q", line)
	}
	for _, want := range []string{"TG 91", "K1ABC", "Op Name", "10s"} {
		if !strings.Contains(line, want) {
			t.Fatalf("call line missing %q: %q", want, line)
		}
	}
}

func TestFormatCallLine(t *testing.T) {
	s := session.Session{
		Talkgroup:       91,
		Callsign:        "K1ABC",
		DisplayName:     "Some Op",
		DurationSeconds: 75,
		HasDuration:     true,
	}
	line := formatCallLine(s)
	if !strings.Contains(line, "1m15s") {
		t.Fatalf("expected minute formatting, got %q", line)
	}
	if !strings.Contains(line, "(Some Op)") {
		t.Fatalf("expected display name fallback, got %q", line)
	}

	s.Alias = "Op Name"
	if line := formatCallLine(s); !strings.Contains(line, "(Op Name)") {
		t.Fatalf("expected alias to win over display name, got %q", line)
	}

	s.AutoCompleted = true
	if line := formatCallLine(s); !strings.Contains(line, "[timeout]") {
		t.Fatalf("expected timeout marker, got %q", line)
	}
}

func TestFormatLiveLineElapsed(t *testing.T) {
	now := time.Unix(1100, 0)
	s := session.Session{Talkgroup: 91, Callsign: "K1ABC", StartEpoch: 1000}
	line := formatLiveLine(s, now)
	if !strings.Contains(line, "1m40s") {
		t.Fatalf("expected elapsed 1m40s, got %q", line)
	}

	// A start epoch in the future clamps to zero instead of going negative.
	s.StartEpoch = 2000
	if line := formatLiveLine(s, now); !strings.Contains(line, "0s") {
		t.Fatalf("expected clamped elapsed, got %q", line)
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m00s"},
		{125, "2m05s"},
		{-5, "0s"},
	}
	for _, tc := range cases {
		if got := formatElapsed(tc.seconds); got != tc.want {
			t.Fatalf("formatElapsed(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
