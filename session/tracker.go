package session

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Option defaults applied by New when the corresponding field is zero.
const (
	defaultMinDuration   = 2 * time.Second
	defaultMaxInactivity = 90 * time.Second
	defaultMaxSessionAge = 5 * time.Minute
	defaultSweepInterval = 10 * time.Second
	defaultMaxStored     = 500
)

// Options configures the tracker. Zero fields take the defaults above;
// structurally invalid combinations fail at construction, never during event
// processing.
type Options struct {
	// MinDuration suppresses completed sessions shorter than this from the
	// call log. A stop landing exactly on the threshold is kept.
	MinDuration time.Duration
	// MaxInactivity marks a session stale after this much wall-clock silence.
	MaxInactivity time.Duration
	// MaxSessionAge force-completes any session older than this, covering
	// lost Stop events.
	MaxSessionAge time.Duration
	// SweepInterval is the eviction sweeper tick period.
	SweepInterval time.Duration
	// MaxStored is the soft cap on stored sessions; double it is the hard
	// emergency cap.
	MaxStored int
	// ShowDelay defers the SessionActive notification, so sub-second key-ups
	// never reach the live view. Zero shows immediately.
	ShowDelay time.Duration
	// Talkgroups restricts tracking to the listed talkgroups. Empty accepts
	// all.
	Talkgroups []int
}

func (o *Options) applyDefaults() {
	if o.MinDuration == 0 {
		o.MinDuration = defaultMinDuration
	}
	if o.MaxInactivity == 0 {
		o.MaxInactivity = defaultMaxInactivity
	}
	if o.MaxSessionAge == 0 {
		o.MaxSessionAge = defaultMaxSessionAge
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = defaultSweepInterval
	}
	if o.MaxStored == 0 {
		o.MaxStored = defaultMaxStored
	}
}

func (o *Options) validate() error {
	if o.MinDuration < 0 || o.MaxInactivity < 0 || o.MaxSessionAge < 0 ||
		o.SweepInterval < 0 || o.ShowDelay < 0 {
		return fmt.Errorf("session: negative duration option")
	}
	if o.MaxStored < 0 {
		return fmt.Errorf("session: negative max stored sessions")
	}
	if o.MaxSessionAge < o.MaxInactivity {
		return fmt.Errorf("session: max session age %v below max inactivity %v",
			o.MaxSessionAge, o.MaxInactivity)
	}
	return nil
}

// Outcome reports what Apply did with an event, for ingest counters and
// tests. The tracker itself never propagates errors to the caller.
type Outcome uint8

const (
	OutcomeIgnored Outcome = iota
	OutcomeStarted
	OutcomeUpdated
	OutcomeLateJoin
	OutcomeCompleted
	OutcomeSuppressedShort
	OutcomeSuppressedError
	OutcomeDiscardedInvalid
	OutcomeFilteredTalkgroup
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeUpdated:
		return "updated"
	case OutcomeLateJoin:
		return "late-join"
	case OutcomeCompleted:
		return "completed"
	case OutcomeSuppressedShort:
		return "suppressed-short"
	case OutcomeSuppressedError:
		return "suppressed-error"
	case OutcomeDiscardedInvalid:
		return "discarded-invalid"
	case OutcomeFilteredTalkgroup:
		return "filtered-talkgroup"
	default:
		return "ignored"
	}
}

// Tracker owns the session store and applies the lifecycle transition rules.
// All mutation funnels through Apply, the clear calls, and the sweeper; the
// single mutex gives each of those run-to-completion semantics, so listeners
// never observe a notification for a state that has already been superseded.
type Tracker struct {
	mu       sync.Mutex
	opts     Options
	tgFilter talkgroupFilter

	sessions map[string]*Session
	// activeByTG indexes the single live session per talkgroup; the feed is
	// half-duplex, so a second live entry on a talkgroup is proof of a lost
	// Stop.
	activeByTG map[int]string
	// showTimers holds pending display-delay callbacks keyed by session id.
	// Every transition that invalidates a pending show cancels it here first;
	// cancellation is idempotent.
	showTimers map[string]*time.Timer

	listener Listener
	aliases  AliasDirectory

	// now is injectable for tests.
	now func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
	closed    bool
}

// NewTracker constructs a tracker. listener may not be nil; aliases may be
// nil, in which case the alias side channel is skipped.
func NewTracker(opts Options, listener Listener, aliases AliasDirectory) (*Tracker, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, fmt.Errorf("session: nil listener")
	}
	return &Tracker{
		opts:       opts,
		tgFilter:   newTalkgroupFilter(opts.Talkgroups),
		sessions:   make(map[string]*Session),
		activeByTG: make(map[int]string),
		showTimers: make(map[string]*time.Timer),
		listener:   listener,
		aliases:    aliases,
		now:        time.Now,
		sweepStop:  make(chan struct{}),
	}, nil
}

// Apply runs one event through the lifecycle state machine. It never returns
// an error: malformed or inconsistent input degrades to a drop, because a
// best-effort telemetry display tolerates loss far better than a crash.
func (t *Tracker) Apply(ev *Event) Outcome {
	if t == nil || ev == nil {
		return OutcomeIgnored
	}
	// Error-flagged transmissions short-circuit everything, including the
	// alias side channel: the network told us the payload is garbage.
	if ev.ErrorFlag {
		return OutcomeSuppressedError
	}
	if !t.tgFilter.allow(ev.Talkgroup) {
		return OutcomeFilteredTalkgroup
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return OutcomeIgnored
	}

	// Alias side channel: the directory learns from any alias-bearing event,
	// whatever its kind, before the state machine runs, so a session created
	// below can already find its alias.
	if ev.TalkerAlias != "" && ev.SourceCall != "" && t.aliases != nil {
		t.aliases.Remember(ev.SourceCall, ev.TalkerAlias)
	}

	switch ev.Kind {
	case KindStart:
		return t.startLocked(ev)
	case KindUpdate:
		return t.updateLocked(ev)
	case KindStop:
		return t.stopLocked(ev)
	default:
		return t.otherLocked(ev)
	}
}

// startLocked creates a session, preempting any live session on the same
// talkgroup first. A re-delivered Start for an id we already track merges
// like an Update instead of spawning a duplicate.
func (t *Tracker) startLocked(ev *Event) Outcome {
	if s, ok := t.sessions[ev.SessionID]; ok && s.Status.live() {
		t.mergeLocked(s, ev)
		return OutcomeUpdated
	}
	t.preemptLocked(ev.Talkgroup, ev.SessionID)
	t.createLocked(ev)
	return OutcomeStarted
}

func (t *Tracker) updateLocked(ev *Event) Outcome {
	s, ok := t.sessions[ev.SessionID]
	if !ok {
		// Late join: the Start was lost, so the Update stands in for it.
		t.preemptLocked(ev.Talkgroup, ev.SessionID)
		t.createLocked(ev)
		return OutcomeLateJoin
	}
	if !s.Status.live() {
		return OutcomeIgnored
	}
	t.mergeLocked(s, ev)
	return OutcomeUpdated
}

func (t *Tracker) stopLocked(ev *Event) Outcome {
	s, ok := t.sessions[ev.SessionID]
	if !ok || !s.Status.live() {
		// Nothing to complete; recovered as a no-op.
		return OutcomeIgnored
	}
	t.cancelShowLocked(s.ID)
	if ev.TalkerAlias != "" {
		s.Alias = ev.TalkerAlias
	}

	stop := ev.StopEpoch
	if stop == 0 {
		stop = t.now().Unix()
	}
	duration := stop - s.StartEpoch
	if duration < 0 {
		// Invalid by construction; discard the whole session with no
		// notifications rather than surface a lie.
		t.dropLocked(s)
		return OutcomeDiscardedInvalid
	}

	s.Status = StatusCompleted
	s.StopEpoch = stop
	s.DurationSeconds = duration
	s.HasDuration = true
	s.LastUpdatedAt = t.now()
	delete(t.activeByTG, s.Talkgroup)

	if s.shown {
		t.listener.SessionRemoved(s.ID)
		s.shown = false
	}
	if suppressShort(duration, t.opts.MinDuration) {
		return OutcomeSuppressedShort
	}
	t.listener.SessionCompleted(*s)
	return OutcomeCompleted
}

// createLocked builds a new Active session from any event kind. Missing
// aliases are backfilled from the directory.
func (t *Tracker) createLocked(ev *Event) {
	now := t.now()
	s := &Session{
		ID:            ev.SessionID,
		Status:        StatusActive,
		Talkgroup:     ev.Talkgroup,
		StartEpoch:    ev.StartEpoch,
		Callsign:      ev.SourceCall,
		RadioID:       ev.SourceID,
		DisplayName:   ev.SourceName,
		Alias:         ev.TalkerAlias,
		LinkName:      ev.LinkName,
		LinkType:      ev.LinkType,
		SessionType:   ev.SessionType,
		ContextID:     ev.ContextID,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if s.StartEpoch == 0 {
		s.StartEpoch = now.Unix()
	}
	if s.Alias == "" && t.aliases != nil && s.Callsign != "" {
		if alias, ok := t.aliases.Lookup(s.Callsign); ok {
			s.Alias = alias
		}
	}
	t.sessions[s.ID] = s
	t.activeByTG[s.Talkgroup] = s.ID

	if t.opts.ShowDelay <= 0 {
		s.shown = true
		t.listener.SessionActive(*s)
		return
	}
	id := s.ID
	t.showTimers[id] = time.AfterFunc(t.opts.ShowDelay, func() { t.fireShow(id) })
}

// fireShow delivers the deferred SessionActive if the session is still live.
// A Stop, preemption or clear that raced the timer has already cancelled it
// or removed the session, so a stale show can never resurrect a transmission.
func (t *Tracker) fireShow(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.showTimers, id)
	s, ok := t.sessions[id]
	if !ok || !s.Status.live() || s.shown {
		return
	}
	s.shown = true
	t.listener.SessionActive(*s)
}

// mergeLocked applies the monotonic field accumulation rule: non-empty
// incoming values win, blanks never erase known data. A stale session that
// receives traffic returns to Active.
func (t *Tracker) mergeLocked(s *Session, ev *Event) {
	overwrite(&s.Callsign, ev.SourceCall)
	overwrite(&s.RadioID, ev.SourceID)
	overwrite(&s.DisplayName, ev.SourceName)
	overwrite(&s.LinkName, ev.LinkName)
	overwrite(&s.LinkType, ev.LinkType)
	overwrite(&s.SessionType, ev.SessionType)
	overwrite(&s.ContextID, ev.ContextID)
	if ev.StartEpoch != 0 && s.StartEpoch == 0 {
		s.StartEpoch = ev.StartEpoch
	}
	// Alias is exempt from the non-empty rule only in the sense that a
	// non-empty incoming alias always wins, even over an existing one.
	if ev.TalkerAlias != "" {
		s.Alias = ev.TalkerAlias
	}
	s.Status = StatusActive
	s.LastUpdatedAt = t.now()
	if s.shown {
		t.listener.SessionUpdated(*s)
	}
}

func overwrite(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// otherLocked handles unrecognized event kinds. They never create or
// complete anything, but an alias riding on one still reaches an existing
// session, whatever its state.
func (t *Tracker) otherLocked(ev *Event) Outcome {
	if ev.TalkerAlias == "" {
		return OutcomeIgnored
	}
	if s, ok := t.sessions[ev.SessionID]; ok && s.Alias != ev.TalkerAlias {
		s.Alias = ev.TalkerAlias
		if s.shown && s.Status.live() {
			t.listener.SessionUpdated(*s)
		}
	}
	return OutcomeIgnored
}

// preemptLocked force-removes the live session on a talkgroup before a new
// one starts there. The feed is half-duplex per talkgroup, so the new Start
// is proof the prior session's Stop was lost. The preempted session is
// discarded without a call-log entry.
func (t *Tracker) preemptLocked(talkgroup int, newID string) {
	oldID, ok := t.activeByTG[talkgroup]
	if !ok || oldID == newID {
		return
	}
	old, ok := t.sessions[oldID]
	if !ok {
		delete(t.activeByTG, talkgroup)
		return
	}
	log.Printf("session: preempting %s on TG%d (lost stop)", oldID, talkgroup)
	t.dropLockedNotify(old)
}

// ClearTalkgroup marks the live session on a talkgroup as Cleared and removes
// it from the live view, e.g. on an operator channel change.
func (t *Tracker) ClearTalkgroup(talkgroup int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.activeByTG[talkgroup]
	if !ok {
		return
	}
	if s, ok := t.sessions[id]; ok {
		t.clearLocked(s)
	}
}

// ClearAll clears every live session, e.g. on feed disconnect, so the live
// view never shows transmissions we can no longer confirm.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sessions {
		if s.Status.live() {
			t.clearLocked(s)
		}
	}
}

func (t *Tracker) clearLocked(s *Session) {
	t.cancelShowLocked(s.ID)
	s.Status = StatusCleared
	s.LastUpdatedAt = t.now()
	delete(t.activeByTG, s.Talkgroup)
	if s.shown {
		t.listener.SessionRemoved(s.ID)
		s.shown = false
	}
}

// dropLocked deletes a session with no notifications at all.
func (t *Tracker) dropLocked(s *Session) {
	t.cancelShowLocked(s.ID)
	delete(t.sessions, s.ID)
	if t.activeByTG[s.Talkgroup] == s.ID {
		delete(t.activeByTG, s.Talkgroup)
	}
}

// dropLockedNotify deletes a session, firing SessionRemoved when a renderer
// has seen it.
func (t *Tracker) dropLockedNotify(s *Session) {
	shown := s.shown
	t.dropLocked(s)
	if shown {
		t.listener.SessionRemoved(s.ID)
	}
}

// cancelShowLocked stops a pending display-delay timer. Double-cancel is a
// no-op, never an error.
func (t *Tracker) cancelShowLocked(id string) {
	if timer, ok := t.showTimers[id]; ok {
		timer.Stop()
		delete(t.showTimers, id)
	}
}

// Stats is a point-in-time aggregation over the store, recomputed on demand
// rather than incrementally maintained, so counters cannot drift.
type Stats struct {
	Stored           int
	Live             int
	Completed        int
	ActiveTalkgroups int
	LastActivity     time.Time
}

// Snapshot recomputes derived statistics from the store. Safe to call on any
// rendering tick; no side effects.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var st Stats
	st.Stored = len(t.sessions)
	tgs := make(map[int]struct{})
	for _, s := range t.sessions {
		if s.Status.live() {
			st.Live++
			tgs[s.Talkgroup] = struct{}{}
		}
		if s.Status == StatusCompleted {
			st.Completed++
		}
		if s.LastUpdatedAt.After(st.LastActivity) {
			st.LastActivity = s.LastUpdatedAt
		}
	}
	st.ActiveTalkgroups = len(tgs)
	return st
}

// LiveSessions returns copies of the sessions currently rendered as live,
// newest first. The copies are safe to hold; the store keeps ownership of
// the originals.
func (t *Tracker) LiveSessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Session, 0, len(t.activeByTG))
	for _, s := range t.sessions {
		if s.Status.live() && s.shown {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartEpoch > out[j].StartEpoch })
	return out
}

// Lookup returns a copy of the session with the given id.
func (t *Tracker) Lookup(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Close stops the sweeper and cancels all pending display timers. The tracker
// drops any event applied after Close.
func (t *Tracker) Close() {
	t.sweepOnce.Do(func() { close(t.sweepStop) })
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.showTimers {
		timer.Stop()
		delete(t.showTimers, id)
	}
}
