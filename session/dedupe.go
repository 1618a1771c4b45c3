package session

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

const (
	dedupeCompactMinPeak     = 1024
	dedupeCompactShrinkRatio = 0.5
)

// Deduper drops re-delivered feed events within a time window. The upstream
// broker occasionally delivers the same envelope more than once; replaying a
// Start or Stop through the tracker is harmless but skews ingest counters and
// wastes notification work, so exact repeats are filtered here, before the
// tracker.
//
// The key hashes session id + event kind + both epochs, so a legitimate new
// event for the same session (different kind or stop time) always passes.
type Deduper struct {
	window          time.Duration
	cleanupInterval time.Duration
	shutdown        chan struct{}

	mu        sync.Mutex
	cache     map[uint64]time.Time
	peak      int
	processed uint64
	repeats   uint64

	now func() time.Time
}

// NewDeduper builds a deduper. A non-positive window disables suppression
// (ShouldProcess always returns true).
func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{
		window:          window,
		cleanupInterval: 60 * time.Second,
		shutdown:        make(chan struct{}),
		cache:           make(map[uint64]time.Time),
		now:             time.Now,
	}
}

// Purpose: Start the cleanup loop that bounds dedupe memory.
// Key aspects: Ticker-driven prune until Stop closes shutdown.
// Upstream: main startup.
// Downstream: cleanup.
func (d *Deduper) Start() {
	go func() {
		ticker := time.NewTicker(d.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.shutdown:
				return
			case <-ticker.C:
				d.cleanup()
			}
		}
	}()
}

// Stop terminates the cleanup loop.
func (d *Deduper) Stop() {
	close(d.shutdown)
}

// ShouldProcess returns true when the event has not been seen within the
// window. First sight records the event.
func (d *Deduper) ShouldProcess(ev *Event) bool {
	if d == nil || d.window <= 0 || ev == nil {
		return true
	}
	hash := dedupeHash(ev)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed++
	if seen, ok := d.cache[hash]; ok {
		age := now.Sub(seen)
		if age < 0 {
			age = -age
		}
		if age < d.window {
			d.repeats++
			return false
		}
	}
	d.cache[hash] = now
	if len(d.cache) > d.peak {
		d.peak = len(d.cache)
	}
	return true
}

// GetStats returns processed and suppressed totals plus current cache size.
func (d *Deduper) GetStats() (processed, repeats uint64, cacheSize int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processed, d.repeats, len(d.cache)
}

// Purpose: Remove expired entries and compact the map after big bursts.
// Key aspects: Rebuilds the map when it shrank well below its peak so the
// bucket array does not stay sized for the burst forever.
// Upstream: cleanup loop.
// Downstream: cache mutation.
func (d *Deduper) cleanup() {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := false
	for hash, seen := range d.cache {
		if now.Sub(seen) > d.window {
			delete(d.cache, hash)
			removed = true
		}
	}
	if !removed || d.peak < dedupeCompactMinPeak {
		return
	}
	if len(d.cache) >= int(float64(d.peak)*dedupeCompactShrinkRatio) {
		return
	}
	next := make(map[uint64]time.Time, len(d.cache))
	for k, v := range d.cache {
		next[k] = v
	}
	d.cache = next
	d.peak = len(next)
}

// dedupeHash folds the identity of one envelope into a single key. Session
// ids are fixed-width padded so short and long ids cannot alias.
func dedupeHash(ev *Event) uint64 {
	var buf [42]byte
	writeFixedID(buf[0:24], ev.SessionID)
	buf[24] = byte(ev.Kind)
	binary.LittleEndian.PutUint64(buf[25:33], uint64(ev.StartEpoch))
	binary.LittleEndian.PutUint64(buf[33:41], uint64(ev.StopEpoch))
	if ev.ErrorFlag {
		buf[41] = 1
	}
	return xxh3.Hash(buf[:])
}

// writeFixedID pads/truncates a session id into a fixed-width buffer.
func writeFixedID(dst []byte, id string) {
	n := 0
	for i := 0; i < len(id) && n < len(dst); i++ {
		dst[n] = id[i]
		n++
	}
	for n < len(dst) {
		dst[n] = 0
		n++
	}
}
