// Package aliasdir persists the callsign→talker-alias directory in a Pebble
// key/value store with a bounded in-memory LRU in front. The directory
// outlives individual transmissions and process restarts: an alias learned
// from any event is available the next time that callsign keys up, even when
// the new session carries no alias of its own.
package aliasdir

import (
	"container/list"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

const (
	aliasPrefix = "a|"

	defaultCacheEntries = 10000
	defaultBlockCache   = int64(8 << 20) // 8MB shared block cache
)

var errClosed = errors.New("aliasdir: directory is closed")

// Directory is the persistent alias map. Safe for concurrent use.
type Directory struct {
	mu      sync.Mutex
	db      *pebble.DB
	cache   *pebble.Cache
	entries map[string]*list.Element
	order   *list.List
	max     int
	closed  bool

	lookups atomic.Uint64
	hits    atomic.Uint64
}

type cacheEntry struct {
	call  string
	alias string
	known bool // negative entries cache misses so cold calls hit pebble once
}

// Open opens (or creates) the directory at the given path.
func Open(path string) (*Directory, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("aliasdir: path is empty")
	}
	opts := &pebble.Options{
		Cache: pebble.NewCache(defaultBlockCache),
	}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(10),
		FilterType:   pebble.TableFilter,
	}
	opts.Levels = make([]pebble.LevelOptions, 7)
	for i := range opts.Levels {
		opts.Levels[i] = level
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		opts.Cache.Unref()
		return nil, fmt.Errorf("aliasdir: open: %w", err)
	}
	return &Directory{
		db:      db,
		cache:   opts.Cache,
		entries: make(map[string]*list.Element, defaultCacheEntries),
		order:   list.New(),
		max:     defaultCacheEntries,
	}, nil
}

// Lookup returns the alias last seen for a callsign.
func (d *Directory) Lookup(callsign string) (string, bool) {
	call := normalizeCall(callsign)
	if d == nil || call == "" {
		return "", false
	}
	d.lookups.Add(1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", false
	}
	if elem, ok := d.entries[call]; ok {
		entry := elem.Value.(*cacheEntry)
		d.order.MoveToFront(elem)
		alias, known := entry.alias, entry.known
		d.mu.Unlock()
		d.hits.Add(1)
		return alias, known && alias != ""
	}
	d.mu.Unlock()

	value, closer, err := d.db.Get(makeKey(call))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			return "", false
		}
		d.remember(call, "", true)
		return "", false
	}
	alias := string(value)
	_ = closer.Close()
	d.remember(call, alias, true)
	return alias, alias != ""
}

// Remember stores a non-empty alias for a callsign, overwriting any previous
// value. Empty input is ignored so a blank event can never erase a known
// alias.
func (d *Directory) Remember(callsign, alias string) {
	call := normalizeCall(callsign)
	alias = strings.TrimSpace(alias)
	if d == nil || call == "" || alias == "" {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if elem, ok := d.entries[call]; ok {
		entry := elem.Value.(*cacheEntry)
		d.order.MoveToFront(elem)
		if entry.known && entry.alias == alias {
			d.mu.Unlock()
			return
		}
	}
	d.mu.Unlock()

	// NoSync keeps the hot path cheap; the directory is advisory display
	// data, so losing the last few writes on a crash is acceptable.
	if err := d.db.Set(makeKey(call), []byte(alias), pebble.NoSync); err != nil {
		return
	}
	d.remember(call, alias, true)
}

// Metrics returns lookup/hit totals for the stats display.
func (d *Directory) Metrics() (lookups, hits uint64) {
	if d == nil {
		return 0, 0
	}
	return d.lookups.Load(), d.hits.Load()
}

// Len reports the number of persisted aliases (scan; stats/debug use only).
func (d *Directory) Len() (int, error) {
	if d == nil || d.db == nil {
		return 0, errClosed
	}
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(aliasPrefix),
		UpperBound: []byte{aliasPrefix[0], aliasPrefix[1] + 1},
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, iter.Error()
}

// Close flushes and releases Pebble resources. Safe to call once.
func (d *Directory) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.db.Flush()
	if cerr := d.db.Close(); err == nil {
		err = cerr
	}
	if d.cache != nil {
		d.cache.Unref()
	}
	return err
}

// remember installs a cache entry with LRU eviction.
func (d *Directory) remember(call, alias string, known bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if elem, ok := d.entries[call]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.alias = alias
		entry.known = known
		d.order.MoveToFront(elem)
		return
	}
	elem := d.order.PushFront(&cacheEntry{call: call, alias: alias, known: known})
	d.entries[call] = elem
	if len(d.entries) > d.max {
		if tail := d.order.Back(); tail != nil {
			d.order.Remove(tail)
			delete(d.entries, tail.Value.(*cacheEntry).call)
		}
	}
}

func makeKey(call string) []byte {
	return []byte(aliasPrefix + call)
}

func normalizeCall(call string) string {
	return strings.ToUpper(strings.TrimSpace(call))
}
