package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogFileNameForDate(t *testing.T) {
	when := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if got := logFileNameForDate(when); got != "22-Jan-2026.log" {
		t.Fatalf("expected log filename to be 22-Jan-2026.log, got %q", got)
	}
}

func TestParseLogFileDate(t *testing.T) {
	parsed, ok := parseLogFileDate("22-Jan-2026.log")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if parsed.Year() != 2026 || parsed.Month() != time.January || parsed.Day() != 22 {
		t.Fatalf("unexpected parsed date: %s", parsed.Format(time.RFC3339))
	}
	if _, ok := parseLogFileDate("notes.txt"); ok {
		t.Fatalf("expected non-log file to be rejected")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"20-Jan-2026.log",
		"21-Jan-2026.log",
		"22-Jan-2026.log",
		"notes.txt",
	}
	for _, name := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := cleanupOldLogs(dir, now, 2); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	expectMissing := []string{"20-Jan-2026.log"}
	for _, name := range expectMissing {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			t.Fatalf("expected %s to be removed", name)
		} else if !os.IsNotExist(err) {
			t.Fatalf("stat %s: %v", name, err)
		}
	}
	expectPresent := []string{"21-Jan-2026.log", "22-Jan-2026.log", "notes.txt"}
	for _, name := range expectPresent {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestDailyFileSinkRotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	sink, err := newDailyFileSink(dir, 7)
	if err != nil {
		t.Fatalf("newDailyFileSink: %v", err)
	}
	defer sink.Close()

	day1 := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	sink.WriteLine("first", day1)
	sink.WriteLine("second", day2)

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data1, err := os.ReadFile(filepath.Join(dir, "22-Jan-2026.log"))
	if err != nil {
		t.Fatalf("read day1 file: %v", err)
	}
	if !strings.Contains(string(data1), "first") {
		t.Fatalf("day1 file missing line: %q", data1)
	}
	data2, err := os.ReadFile(filepath.Join(dir, "23-Jan-2026.log"))
	if err != nil {
		t.Fatalf("read day2 file: %v", err)
	}
	if !strings.Contains(string(data2), "second") {
		t.Fatalf("day2 file missing line: %q", data2)
	}
}

type captureSink struct {
	lines []string
}

func (c *captureSink) WriteLine(line string, now time.Time) {
	c.lines = append(c.lines, line)
}

func (c *captureSink) Close() error { return nil }

func TestLogFanoutSplitsLines(t *testing.T) {
	console := &captureSink{}
	file := &captureSink{}
	fanout := newLogFanout(console, file)

	if _, err := fanout.Write([]byte("one\ntwo\npartial")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(console.lines) != 2 || console.lines[0] != "one" || console.lines[1] != "two" {
		t.Fatalf("unexpected console lines: %v", console.lines)
	}
	if len(file.lines) != 2 {
		t.Fatalf("unexpected file lines: %v", file.lines)
	}

	if _, err := fanout.Write([]byte(" done\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := console.lines[len(console.lines)-1]; got != "partial done" {
		t.Fatalf("expected buffered partial line to complete, got %q", got)
	}
}

func TestWriteFileOnlyLineSkipsConsole(t *testing.T) {
	console := &captureSink{}
	file := &captureSink{}
	fanout := newLogFanout(console, file)

	fanout.WriteFileOnlyLine("CALL TG 91 K1ABC 10s", time.Now())

	if len(console.lines) != 0 {
		t.Fatalf("expected no console output, got %v", console.lines)
	}
	if len(file.lines) != 1 || file.lines[0] != "CALL TG 91 K1ABC 10s" {
		t.Fatalf("unexpected file lines: %v", file.lines)
	}
}
