package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"bmwatch/aliasdir"
	"bmwatch/bmfeed"
	"bmwatch/config"
	"bmwatch/session"
	"bmwatch/settings"
	"bmwatch/stats"
)

const Version = "1.2.0"

const (
	envConfigPath     = "BMWATCH_CONFIG"
	defaultConfigPath = "data/config.yaml"

	statsInterval = 10 * time.Second

	settingsKeyTalkgroups = "talkgroups"
)

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main UI selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Load configuration from env/default locations.
// Key aspects: Tries env override first, then the default config dir.
// Upstream: main startup.
// Downstream: config.Load and os.IsNotExist.
func loadWatchConfig() (*config.Config, string, error) {
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)

	var lastErr error
	for _, path := range candidates {
		if path == "" {
			continue
		}
		cfg, err := config.Load(path)
		if err != nil {
			if os.IsNotExist(err) {
				lastErr = err
				continue
			}
			return nil, path, err
		}
		return cfg, path, nil
	}
	return nil, "", fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

// resolveTalkgroups merges the config list with the operator's persisted
// selection. An explicit config list wins and is written back so it survives
// a config edit that later removes it.
func resolveTalkgroups(cfg *config.Config, store *settings.Store) []int {
	if store == nil {
		return cfg.Tracker.Talkgroups
	}
	if len(cfg.Tracker.Talkgroups) > 0 {
		if err := store.SetInts(settingsKeyTalkgroups, cfg.Tracker.Talkgroups); err != nil {
			log.Printf("Warning: unable to persist talkgroup selection: %v", err)
		}
		return cfg.Tracker.Talkgroups
	}
	saved, err := store.GetInts(settingsKeyTalkgroups)
	if err != nil {
		log.Printf("Warning: unable to read persisted talkgroup selection: %v", err)
		return nil
	}
	return saved
}

// Purpose: Program entrypoint; wires configuration, feed ingest, and display.
// Key aspects: Initializes stores/clients/UI and manages graceful shutdown.
// Upstream: OS process start.
// Downstream: Startup helpers, goroutines, and the MQTT feed client.
func main() {
	cfg, configSource, err := loadWatchConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", err)
	}
	log.SetOutput(fanout)
	defer fanout.Close()
	log.Printf("Loaded configuration from %s", configSource)

	dash := newDashboard(cfg.UI.Dashboard && isStdoutTTY())
	if dash != nil {
		dash.WaitReady()
		defer dash.Stop()
		// Dashboard handles its own timestamp formatting; disable the default log prefixes.
		log.SetFlags(0)
		fanout.SetConsoleSink(dash.SystemWriter(), true)
		dash.SetStats([]string{"Initializing..."})
	} else if cfg.UI.Dashboard {
		log.Printf("Dashboard disabled (requires an interactive console)")
	}

	log.Printf("Brandmeister session watch v%s starting...", Version)

	// Print the configuration (stdout only when not using the dashboard)
	if dash == nil {
		cfg.Print()
	}

	var settingsStore *settings.Store
	if cfg.Settings.Enabled {
		store, err := settings.Open(cfg.Settings.Path)
		if err != nil {
			log.Printf("Warning: settings store disabled: %v", err)
		} else {
			settingsStore = store
			defer settingsStore.Close()
		}
	}

	var aliases session.AliasDirectory
	var aliasStore *aliasdir.Directory
	if cfg.Alias.Enabled {
		dir, err := aliasdir.Open(cfg.Alias.Dir)
		if err != nil {
			log.Printf("Warning: alias directory disabled: %v", err)
		} else {
			aliasStore = dir
			aliases = dir
			defer aliasStore.Close()
		}
	}

	statsTracker := stats.NewTracker()
	view := newConsoleView(dash, fanout)

	tracker, err := session.NewTracker(session.Options{
		MinDuration:   cfg.Tracker.MinDuration(),
		MaxInactivity: cfg.Tracker.MaxInactivity(),
		MaxSessionAge: cfg.Tracker.MaxSessionAge(),
		SweepInterval: cfg.Tracker.SweepInterval(),
		MaxStored:     cfg.Tracker.MaxStoredSessions,
		ShowDelay:     cfg.Tracker.ShowDelay(),
		Talkgroups:    resolveTalkgroups(cfg, settingsStore),
	}, view, aliases)
	if err != nil {
		log.Fatalf("Error creating session tracker: %v", err)
	}
	tracker.StartSweeper()
	defer tracker.Close()

	var deduper *session.Deduper
	if window := cfg.Dedupe.Window(); window > 0 {
		deduper = session.NewDeduper(window)
		deduper.Start()
		defer deduper.Stop()
	}

	feed := bmfeed.NewClient(cfg.Feed.Broker, cfg.Feed.Port, cfg.Feed.Topic)
	// The broker replays nothing after a gap, so any live entry from before
	// the drop may already be over. Clear the board instead of guessing.
	feed.OnConnectionLost = func(err error) {
		log.Printf("Feed connection lost: %v; clearing live sessions", err)
		tracker.ClearAll()
	}
	if err := feed.Connect(); err != nil {
		log.Fatalf("Error connecting to feed broker: %v", err)
	}

	// Purpose: Pump feed events through dedupe into the tracker.
	// Key aspects: Runs in its own goroutine to keep MQTT delivery non-blocking.
	// Upstream: main startup after feed connect.
	// Downstream: Deduper.ShouldProcess and Tracker.Apply.
	go func() {
		for ev := range feed.Events() {
			if deduper != nil && !deduper.ShouldProcess(ev) {
				statsTracker.IncrementDuplicates()
				continue
			}
			statsTracker.IncrementKind(ev.Kind.String())
			outcome := tracker.Apply(ev)
			statsTracker.IncrementOutcome(outcome.String())
			debugf("Event %s %s -> %s", ev.Kind, ev.SessionID, outcome)
		}
	}()

	// Purpose: Periodically emit stats to UI or logs.
	// Key aspects: Runs on ticker interval until shutdown.
	// Upstream: main startup.
	// Downstream: displayStats.
	go displayStats(statsInterval, statsTracker, tracker, feed, deduper, aliasStore, view, dash, fanout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Watch is running. Press Ctrl+C to stop.")
	log.Printf("Feed: %s:%d (topic: %s)", cfg.Feed.Broker, cfg.Feed.Port, cfg.Feed.Topic)
	if window := cfg.Dedupe.Window(); window > 0 {
		log.Printf("Event deduplication active: %s window", window)
	} else {
		log.Println("Event deduplication bypassed (window=0); repeats are not filtered")
	}
	log.Println("---")

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down gracefully...")

	feed.Stop()
	if deduper != nil {
		deduper.Stop()
	}
	tracker.Close()

	log.Println("Shutdown complete")
}

// Purpose: Render the periodic stats block for the dashboard or logs.
// Key aspects: Recomputes everything from current state each tick; no drift.
// Upstream: main stats goroutine.
// Downstream: Tracker.Snapshot, stats counters, dashboard SetStats.
func displayStats(interval time.Duration, ingest *stats.Tracker, tracker *session.Tracker, feed *bmfeed.Client, deduper *session.Deduper, aliasStore *aliasdir.Directory, view *consoleView, dash *dashboard, fanout *logFanout) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		snap := tracker.Snapshot()
		malformed, dropped := feed.Counters()

		lines := make([]string, 0, 5)
		lines = append(lines, fmt.Sprintf("Uptime: %s | Events: %s | Malformed: %s | Dropped: %s",
			formatUptime(ingest.GetUptime()),
			humanize.Comma(int64(ingest.GetTotal())),
			humanize.Comma(int64(malformed)),
			humanize.Comma(int64(dropped))))
		lines = append(lines, fmt.Sprintf("Live: %d | Active TGs: %d | Stored: %d | Completed: %s",
			snap.Live, snap.ActiveTalkgroups, snap.Stored,
			humanize.Comma(int64(view.CompletedCount()))))
		if deduper != nil {
			processed, repeats, cacheSize := deduper.GetStats()
			lines = append(lines, fmt.Sprintf("Dedupe: %s processed, %s repeats, %d cached",
				humanize.Comma(int64(processed)), humanize.Comma(int64(repeats)), cacheSize))
		}
		if aliasStore != nil {
			lookups, hits := aliasStore.Metrics()
			lines = append(lines, fmt.Sprintf("Aliases: %s lookups, %s hits",
				humanize.Comma(int64(lookups)), humanize.Comma(int64(hits))))
		}
		if !snap.LastActivity.IsZero() {
			lines = append(lines, fmt.Sprintf("Last activity: %s", humanize.Time(snap.LastActivity)))
		}

		if dash != nil {
			dash.SetStats(lines)
			view.RefreshLive()
		} else {
			log.Printf("Stats: %s", strings.Join(lines, " | "))
		}
		fanout.WriteFileOnlyLine("STATS "+strings.Join(lines, " | "), time.Now())
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
