// Package settings persists operator preferences as an opaque key→string map
// in SQLite. It is the simple get/set collaborator the tracker core treats as
// external: the core never touches it directly, main wires it in.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is an SQLite-backed key/value store. Safe for concurrent use via the
// database/sql pool.
type Store struct {
	db *sql.DB
}

// Open creates the database (and parent directory) when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("settings: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("settings: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("settings: open db: %w", err)
	}
	if _, err := db.Exec(`pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("settings: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`create table if not exists settings(
		key text primary key,
		value text not null,
		updated_at integer not null
	)`)
	if err != nil {
		return fmt.Errorf("settings: schema: %w", err)
	}
	return nil
}

// Get returns the value for a key; ok is false when the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`select value from settings where key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores or replaces a value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`insert into settings(key, value, updated_at) values(?, ?, ?)
		 on conflict(key) do update set value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}
	return nil
}

// GetInts parses a stored comma-separated integer list (e.g. a persisted
// talkgroup selection). Absent key yields a nil slice.
func (s *Store) GetInts(key string) ([]int, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return nil, err
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err != nil {
			return nil, fmt.Errorf("settings: %q holds non-integer %q", key, p)
		}
		out = append(out, n)
	}
	return out, nil
}

// SetInts stores an integer list as comma-separated text.
func (s *Store) SetInts(key string, values []int) error {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return s.Set(key, strings.Join(parts, ","))
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
