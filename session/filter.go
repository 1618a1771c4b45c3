package session

import "time"

// talkgroupFilter is the accept-set for destination talkgroups. An empty
// filter accepts everything.
type talkgroupFilter map[int]struct{}

func newTalkgroupFilter(talkgroups []int) talkgroupFilter {
	if len(talkgroups) == 0 {
		return nil
	}
	f := make(talkgroupFilter, len(talkgroups))
	for _, tg := range talkgroups {
		f[tg] = struct{}{}
	}
	return f
}

func (f talkgroupFilter) allow(talkgroup int) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[talkgroup]
	return ok
}

// suppressShort decides whether a completed session is noise for the call
// log. The boundary is inclusive: a duration equal to the threshold is kept.
// Suppression only gates the completion log; Start/Update events always
// reach the store so a later Stop has state to complete.
func suppressShort(durationSeconds int64, min time.Duration) bool {
	return time.Duration(durationSeconds)*time.Second < min
}
