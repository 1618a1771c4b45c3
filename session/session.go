// Package session implements the transmission session tracker: it ingests
// normalized Brandmeister last-heard events, maintains the keyed store of
// in-flight and recently completed transmissions, applies the half-duplex
// preemption and duration-filter rules, and bounds memory with a periodic
// eviction sweep. Renderers subscribe through the Listener interface and
// never hold references into the store.
package session

import "time"

// Status is the lifecycle state of a tracked session.
type Status uint8

const (
	// StatusActive marks a transmission that is (as far as we know) still
	// keyed up. Stale sessions also render as live; see StatusStale.
	StatusActive Status = iota
	// StatusCompleted marks a transmission that ended with a usable duration.
	StatusCompleted
	// StatusStale is internal bookkeeping for an Active session that has not
	// been refreshed within the inactivity window. It is never surfaced
	// differently from Active, so normal network jitter does not flicker the
	// live view.
	StatusStale
	// StatusCleared marks a session terminated by an external reset (channel
	// change, disconnect) rather than a network Stop.
	StatusCleared
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusStale:
		return "stale"
	case StatusCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// live reports whether the status renders as an in-progress transmission.
func (s Status) live() bool {
	return s == StatusActive || s == StatusStale
}

// Session is one tracked transmission, identified by the network-assigned
// session id. Instances are owned exclusively by the Tracker; listeners
// receive value copies and must re-look-up by id rather than cache them.
type Session struct {
	ID        string
	Status    Status
	Talkgroup int

	// Network-reported epoch times. StopEpoch is zero until completion.
	StartEpoch int64
	StopEpoch  int64

	// DurationSeconds is valid only when HasDuration is true, which happens
	// exactly when the session reaches StatusCompleted.
	DurationSeconds int64
	HasDuration     bool

	// Source identity. Filled on creation and only overwritten by later
	// events carrying a non-empty value; a blank field on an Update never
	// erases what we already know. Alias is the one exception: a non-empty
	// incoming alias always wins.
	Callsign    string
	RadioID     string
	DisplayName string
	Alias       string

	// Descriptive link metadata, accumulated across Update events.
	LinkName    string
	LinkType    string
	SessionType string
	ContextID   string

	// Wall-clock bookkeeping for the sweeper, independent of the
	// network-reported epochs above.
	CreatedAt     time.Time
	LastUpdatedAt time.Time

	// AutoCompleted is set when the sweeper synthesized the stop because the
	// session exceeded its maximum age.
	AutoCompleted bool

	// shown tracks whether SessionActive has been delivered, so removal
	// notifications are only sent for sessions a renderer has seen.
	shown bool
}

// Listener receives session notifications. Callbacks run synchronously inside
// the mutating turn (tracker lock held), so a state change and its
// notification are atomic with respect to later events; implementations must
// not call back into the Tracker.
type Listener interface {
	// SessionActive fires when a session should appear in the live view
	// (after the optional show delay).
	SessionActive(s Session)
	// SessionUpdated fires when fields change on a session already shown.
	SessionUpdated(s Session)
	// SessionCompleted fires for sessions that ended and passed the duration
	// filter; append to the historical call log.
	SessionCompleted(s Session)
	// SessionRemoved fires when a session should disappear from the live
	// view (completion, clearing, preemption, eviction), independent of
	// whether it was logged.
	SessionRemoved(sessionID string)
}

// AliasDirectory is the long-lived callsign→alias side channel. It outlives
// individual sessions and is updated opportunistically from any alias-bearing
// event; new sessions without their own alias consult it on creation.
type AliasDirectory interface {
	Lookup(callsign string) (string, bool)
	Remember(callsign, alias string)
}
