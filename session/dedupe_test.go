package session

import (
	"testing"
	"time"
)

func TestDeduperSuppressesRepeatsWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDeduper(10 * time.Second)
	d.now = func() time.Time { return now }

	ev := &Event{SessionID: "S1", Kind: KindStart, Talkgroup: 91, StartEpoch: 1000}
	if !d.ShouldProcess(ev) {
		t.Fatal("expected first delivery to pass")
	}
	if d.ShouldProcess(ev) {
		t.Fatal("expected re-delivery within window to be suppressed")
	}

	now = now.Add(11 * time.Second)
	if !d.ShouldProcess(ev) {
		t.Fatal("expected delivery after window to pass")
	}

	processed, repeats, _ := d.GetStats()
	if processed != 3 || repeats != 1 {
		t.Fatalf("expected processed=3 repeats=1, got %d/%d", processed, repeats)
	}
}

func TestDeduperDistinguishesKindAndEpochs(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDeduper(time.Minute)
	d.now = func() time.Time { return now }

	start := &Event{SessionID: "S1", Kind: KindStart, StartEpoch: 1000}
	update := &Event{SessionID: "S1", Kind: KindUpdate, StartEpoch: 1000}
	stop := &Event{SessionID: "S1", Kind: KindStop, StartEpoch: 1000, StopEpoch: 1010}

	for i, ev := range []*Event{start, update, stop} {
		if !d.ShouldProcess(ev) {
			t.Fatalf("event %d: distinct kinds must not collide", i)
		}
	}
	otherSession := &Event{SessionID: "S2", Kind: KindStart, StartEpoch: 1000}
	if !d.ShouldProcess(otherSession) {
		t.Fatal("distinct session ids must not collide")
	}
}

func TestDeduperDisabledWindowPassesEverything(t *testing.T) {
	d := NewDeduper(0)
	ev := &Event{SessionID: "S1", Kind: KindStart}
	for i := 0; i < 3; i++ {
		if !d.ShouldProcess(ev) {
			t.Fatalf("pass %d: disabled deduper must forward everything", i)
		}
	}
}

func TestDeduperCleanupPrunesExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDeduper(5 * time.Second)
	d.now = func() time.Time { return now }

	d.ShouldProcess(&Event{SessionID: "S1", Kind: KindStart})
	d.ShouldProcess(&Event{SessionID: "S2", Kind: KindStart})
	now = now.Add(time.Minute)
	d.cleanup()

	if _, _, size := d.GetStats(); size != 0 {
		t.Fatalf("expected empty cache after cleanup, got %d", size)
	}
}
