package aliasdir

import (
	"path/filepath"
	"testing"
)

func openTestDir(t *testing.T, path string) *Directory {
	t.Helper()
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestRememberAndLookup(t *testing.T) {
	d := openTestDir(t, filepath.Join(t.TempDir(), "aliases"))
	defer d.Close()

	if _, ok := d.Lookup("OE1ABC"); ok {
		t.Fatal("expected miss for unknown callsign")
	}
	d.Remember("OE1ABC", "Franz in Vienna")
	alias, ok := d.Lookup("OE1ABC")
	if !ok || alias != "Franz in Vienna" {
		t.Fatalf("expected stored alias, got %q ok=%v", alias, ok)
	}

	// Later aliases win; empty input never erases.
	d.Remember("OE1ABC", "Franz portable")
	d.Remember("OE1ABC", "")
	if alias, _ := d.Lookup("OE1ABC"); alias != "Franz portable" {
		t.Fatalf("expected latest non-empty alias, got %q", alias)
	}
}

func TestLookupNormalizesCallsign(t *testing.T) {
	d := openTestDir(t, filepath.Join(t.TempDir(), "aliases"))
	defer d.Close()

	d.Remember(" oe1abc ", "Franz")
	if alias, ok := d.Lookup("OE1ABC"); !ok || alias != "Franz" {
		t.Fatalf("expected case-insensitive lookup, got %q ok=%v", alias, ok)
	}
}

func TestAliasesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases")

	d := openTestDir(t, path)
	d.Remember("K1ABC", "Boston Op")
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d = openTestDir(t, path)
	defer d.Close()
	alias, ok := d.Lookup("K1ABC")
	if !ok || alias != "Boston Op" {
		t.Fatalf("expected alias to survive reopen, got %q ok=%v", alias, ok)
	}
	if n, err := d.Len(); err != nil || n != 1 {
		t.Fatalf("expected 1 persisted alias, got %d err=%v", n, err)
	}
}

func TestClosedDirectoryIsInert(t *testing.T) {
	d := openTestDir(t, filepath.Join(t.TempDir(), "aliases"))
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
	d.Remember("K1ABC", "Late")
	if _, ok := d.Lookup("K1ABC"); ok {
		t.Fatal("closed directory must not serve lookups")
	}
}
