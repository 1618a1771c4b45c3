// Package stats tracks ingest counters (events by kind, apply outcomes, drop
// reasons) for the dashboard and periodic console output.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker tracks feed ingest statistics.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-event increments don't fight over a mutex
	kindCounts    sync.Map // string -> *atomic.Uint64
	outcomeCounts sync.Map // string -> *atomic.Uint64
	start         atomic.Int64
	malformed     atomic.Uint64
	duplicates    atomic.Uint64
}

// NewTracker creates a new stats tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementKind increases the count for an event kind (start, update, stop, other).
func (t *Tracker) IncrementKind(kind string) {
	incrementCounter(&t.kindCounts, kind)
}

// IncrementOutcome increases the count for a tracker apply outcome
// (started, completed, suppressed-short, ...).
func (t *Tracker) IncrementOutcome(outcome string) {
	incrementCounter(&t.outcomeCounts, outcome)
}

// IncrementMalformed counts a payload the normalizer rejected.
func (t *Tracker) IncrementMalformed() {
	t.malformed.Add(1)
}

// IncrementDuplicates counts an event the dedupe window suppressed.
func (t *Tracker) IncrementDuplicates() {
	t.duplicates.Add(1)
}

// GetKindCounts returns a copy of per-kind counts.
func (t *Tracker) GetKindCounts() map[string]uint64 {
	return copyCounts(&t.kindCounts)
}

// GetOutcomeCounts returns a copy of per-outcome counts.
func (t *Tracker) GetOutcomeCounts() map[string]uint64 {
	return copyCounts(&t.outcomeCounts)
}

// GetTotal returns the total event count across all kinds.
func (t *Tracker) GetTotal() uint64 {
	var total uint64
	t.kindCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// Malformed returns the cumulative number of rejected payloads.
func (t *Tracker) Malformed() uint64 {
	return t.malformed.Load()
}

// Duplicates returns the cumulative number of suppressed re-deliveries.
func (t *Tracker) Duplicates() uint64 {
	return t.duplicates.Load()
}

// GetUptime returns how long the tracker has been running.
func (t *Tracker) GetUptime() time.Duration {
	return time.Since(time.Unix(0, t.start.Load()))
}

// Reset resets all counters.
func (t *Tracker) Reset() {
	t.kindCounts.Range(func(key, _ any) bool {
		t.kindCounts.Delete(key)
		return true
	})
	t.outcomeCounts.Range(func(key, _ any) bool {
		t.outcomeCounts.Delete(key)
		return true
	})
	t.malformed.Store(0)
	t.duplicates.Store(0)
	t.start.Store(time.Now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, 3)
	lines = append(lines, formatMapCounts("Events by kind", &t.kindCounts))
	lines = append(lines, formatMapCounts("Apply outcomes", &t.outcomeCounts))
	lines = append(lines, fmt.Sprintf("Dropped: malformed=%d duplicates=%d",
		t.malformed.Load(), t.duplicates.Load()))
	return lines
}

func copyCounts(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func formatMapCounts(label string, counts *sync.Map) string {
	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	first := true
	counts.Range(func(key, value any) bool {
		if !first {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%d", key.(string), value.(*atomic.Uint64).Load())
		first = false
		return true
	})
	if first {
		builder.WriteString("(none)")
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
