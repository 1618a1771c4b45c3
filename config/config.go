// Package config loads and validates the bmwatch YAML configuration.
// Structural problems fail fast here, at load time, never during event
// processing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bmwatch configuration.
type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Alias    AliasConfig    `yaml:"alias"`
	Settings SettingsConfig `yaml:"settings"`
	UI       UIConfig       `yaml:"ui"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// FeedConfig contains Brandmeister MQTT feed settings.
type FeedConfig struct {
	Broker string `yaml:"broker"`
	Port   int    `yaml:"port"`
	Topic  string `yaml:"topic"`
}

// TrackerConfig contains session tracker thresholds. All recognized options
// from the external contract live here; zero values fall back to the
// tracker's defaults.
type TrackerConfig struct {
	MinDurationSeconds int   `yaml:"min_duration_seconds"`
	MaxInactivityMS    int   `yaml:"max_inactivity_ms"`
	MaxSessionAgeMS    int   `yaml:"max_session_age_ms"`
	SweepIntervalMS    int   `yaml:"sweep_interval_ms"`
	MaxStoredSessions  int   `yaml:"max_stored_sessions"`
	ShowDelayMS        int   `yaml:"show_delay_ms"`
	Talkgroups         []int `yaml:"talkgroups"` // empty = all
}

// DedupeConfig contains the raw-event deduplication window.
type DedupeConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowSeconds int  `yaml:"window_seconds"`
}

// AliasConfig contains the persistent alias directory settings.
type AliasConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// SettingsConfig contains the operator settings store location.
type SettingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// UIConfig toggles the console dashboard.
type UIConfig struct {
	Dashboard bool `yaml:"dashboard"`
}

// LoggingConfig contains log file settings.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	Debug         bool   `yaml:"debug"`
}

// Load loads configuration from a YAML file and validates it.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects structurally invalid configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.Broker) == "" {
		return fmt.Errorf("config: feed.broker is required")
	}
	if c.Feed.Port <= 0 || c.Feed.Port > 65535 {
		return fmt.Errorf("config: feed.port %d out of range", c.Feed.Port)
	}
	if strings.TrimSpace(c.Feed.Topic) == "" {
		return fmt.Errorf("config: feed.topic is required")
	}
	for _, field := range []struct {
		name  string
		value int
	}{
		{"tracker.min_duration_seconds", c.Tracker.MinDurationSeconds},
		{"tracker.max_inactivity_ms", c.Tracker.MaxInactivityMS},
		{"tracker.max_session_age_ms", c.Tracker.MaxSessionAgeMS},
		{"tracker.sweep_interval_ms", c.Tracker.SweepIntervalMS},
		{"tracker.max_stored_sessions", c.Tracker.MaxStoredSessions},
		{"tracker.show_delay_ms", c.Tracker.ShowDelayMS},
		{"dedupe.window_seconds", c.Dedupe.WindowSeconds},
	} {
		if field.value < 0 {
			return fmt.Errorf("config: %s must not be negative", field.name)
		}
	}
	for _, tg := range c.Tracker.Talkgroups {
		if tg < 0 {
			return fmt.Errorf("config: negative talkgroup %d", tg)
		}
	}
	if c.Alias.Enabled && strings.TrimSpace(c.Alias.Dir) == "" {
		return fmt.Errorf("config: alias.dir is required when alias.enabled")
	}
	if c.Settings.Enabled && strings.TrimSpace(c.Settings.Path) == "" {
		return fmt.Errorf("config: settings.path is required when settings.enabled")
	}
	if c.Logging.Enabled && strings.TrimSpace(c.Logging.Dir) == "" {
		return fmt.Errorf("config: logging.dir is required when logging.enabled")
	}
	return nil
}

// MinDuration returns the configured duration-filter threshold.
func (t TrackerConfig) MinDuration() time.Duration {
	return time.Duration(t.MinDurationSeconds) * time.Second
}

// MaxInactivity returns the staleness threshold.
func (t TrackerConfig) MaxInactivity() time.Duration {
	return time.Duration(t.MaxInactivityMS) * time.Millisecond
}

// MaxSessionAge returns the forced-completion threshold.
func (t TrackerConfig) MaxSessionAge() time.Duration {
	return time.Duration(t.MaxSessionAgeMS) * time.Millisecond
}

// SweepInterval returns the sweeper tick period.
func (t TrackerConfig) SweepInterval() time.Duration {
	return time.Duration(t.SweepIntervalMS) * time.Millisecond
}

// ShowDelay returns the display-delay period.
func (t TrackerConfig) ShowDelay() time.Duration {
	return time.Duration(t.ShowDelayMS) * time.Millisecond
}

// Window returns the dedupe window, zero when disabled.
func (d DedupeConfig) Window() time.Duration {
	if !d.Enabled {
		return 0
	}
	return time.Duration(d.WindowSeconds) * time.Second
}

// Print displays the configuration summary at startup.
func (c *Config) Print() {
	fmt.Printf("Feed: %s:%d (topic: %s)\n", c.Feed.Broker, c.Feed.Port, c.Feed.Topic)
	if len(c.Tracker.Talkgroups) > 0 {
		parts := make([]string, len(c.Tracker.Talkgroups))
		for i, tg := range c.Tracker.Talkgroups {
			parts[i] = fmt.Sprintf("%d", tg)
		}
		fmt.Printf("Talkgroups: %s\n", strings.Join(parts, ", "))
	} else {
		fmt.Println("Talkgroups: all")
	}
	if c.Dedupe.Enabled {
		fmt.Printf("Dedupe: window=%ds\n", c.Dedupe.WindowSeconds)
	}
	if c.Alias.Enabled {
		fmt.Printf("Alias directory: %s\n", c.Alias.Dir)
	}
	if c.Settings.Enabled {
		fmt.Printf("Settings store: %s\n", c.Settings.Path)
	}
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retention %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
