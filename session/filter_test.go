package session

import (
	"testing"
	"time"
)

func TestTalkgroupFilter(t *testing.T) {
	all := newTalkgroupFilter(nil)
	if !all.allow(91) || !all.allow(0) {
		t.Fatal("empty filter must accept all talkgroups")
	}

	f := newTalkgroupFilter([]int{91, 232})
	if !f.allow(91) || !f.allow(232) {
		t.Fatal("listed talkgroups must be accepted")
	}
	if f.allow(3100) {
		t.Fatal("unlisted talkgroup must be rejected")
	}
}

func TestSuppressShortBoundary(t *testing.T) {
	min := 4 * time.Second
	if suppressShort(4, min) {
		t.Fatal("duration equal to threshold must be kept")
	}
	if !suppressShort(3, min) {
		t.Fatal("duration below threshold must be suppressed")
	}
	if suppressShort(0, 0) {
		t.Fatal("zero threshold suppresses nothing")
	}
}
