package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
feed:
  broker: lh.brandmeister.network
  port: 1883
  topic: LH/#
tracker:
  min_duration_seconds: 4
  max_inactivity_ms: 90000
  max_session_age_ms: 300000
  sweep_interval_ms: 10000
  max_stored_sessions: 500
  show_delay_ms: 1500
  talkgroups: [91, 232]
dedupe:
  enabled: true
  window_seconds: 10
alias:
  enabled: true
  dir: data/aliases
settings:
  enabled: true
  path: data/bmwatch.db
logging:
  enabled: true
  dir: logs
  retention_days: 7
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.Broker != "lh.brandmeister.network" || cfg.Feed.Topic != "LH/#" {
		t.Fatalf("unexpected feed config: %+v", cfg.Feed)
	}
	if got := cfg.Tracker.MinDuration(); got != 4*time.Second {
		t.Fatalf("expected 4s min duration, got %v", got)
	}
	if got := cfg.Tracker.ShowDelay(); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s show delay, got %v", got)
	}
	if got := cfg.Dedupe.Window(); got != 10*time.Second {
		t.Fatalf("expected 10s dedupe window, got %v", got)
	}
	if len(cfg.Tracker.Talkgroups) != 2 {
		t.Fatalf("expected 2 talkgroups, got %v", cfg.Tracker.Talkgroups)
	}
}

func TestDedupeWindowZeroWhenDisabled(t *testing.T) {
	d := DedupeConfig{Enabled: false, WindowSeconds: 10}
	if d.Window() != 0 {
		t.Fatalf("expected zero window when disabled, got %v", d.Window())
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing broker",
			body: "feed:\n  port: 1883\n  topic: LH/#\n",
			want: "feed.broker",
		},
		{
			name: "bad port",
			body: "feed:\n  broker: x\n  port: 70000\n  topic: LH/#\n",
			want: "feed.port",
		},
		{
			name: "missing topic",
			body: "feed:\n  broker: x\n  port: 1883\n",
			want: "feed.topic",
		},
		{
			name: "negative threshold",
			body: "feed:\n  broker: x\n  port: 1883\n  topic: LH/#\ntracker:\n  min_duration_seconds: -1\n",
			want: "min_duration_seconds",
		},
		{
			name: "alias enabled without dir",
			body: "feed:\n  broker: x\n  port: 1883\n  topic: LH/#\nalias:\n  enabled: true\n",
			want: "alias.dir",
		},
		{
			name: "logging enabled without dir",
			body: "feed:\n  broker: x\n  port: 1883\n  topic: LH/#\nlogging:\n  enabled: true\n",
			want: "logging.dir",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsUnparseableFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "feed: [broken")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
