package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload wraps any normalization failure. Callers drop the event
// with a debug-level notice; normalization errors are never fatal.
var ErrMalformedPayload = errors.New("malformed payload")

// Kind classifies an inbound event.
type Kind uint8

const (
	// KindOther covers unrecognized Event values. Not an error: the tracker
	// decides what, if anything, to do with them (alias side channel only).
	KindOther Kind = iota
	KindStart
	KindUpdate
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindUpdate:
		return "update"
	case KindStop:
		return "stop"
	default:
		return "other"
	}
}

// Event is one normalized inbound message. Ephemeral: the tracker consumes it
// and never retains a reference.
type Event struct {
	SessionID   string
	Kind        Kind
	SourceCall  string
	SourceID    string
	SourceName  string
	Talkgroup   int
	StartEpoch  int64
	StopEpoch   int64 // present only on Stop
	TalkerAlias string
	LinkName    string
	LinkType    string
	SessionType string
	ContextID   string
	ErrorFlag   bool // network-detected transmission error; suppress entirely
}

// wireEvent mirrors the Brandmeister last-heard JSON envelope.
//
// The feed sends numbers for radio ids, talkgroups and epochs; everything
// else is a string. Absent fields unmarshal to zero values and are mapped to
// empty strings downstream, never nil.
type wireEvent struct {
	SessionID     string `json:"SessionID"`     // network-assigned correlation key
	Event         string `json:"Event"`         // Session-Start / Session-Update / Session-Stop
	SourceCall    string `json:"SourceCall"`    // transmitting callsign
	SourceID      int64  `json:"SourceID"`      // transmitting radio id (DMR ID)
	SourceName    string `json:"SourceName"`    // operator display name
	DestinationID int    `json:"DestinationID"` // talkgroup
	Start         int64  `json:"Start"`         // transmission start, epoch seconds
	Stop          int64  `json:"Stop"`          // transmission stop, epoch seconds (0 until Session-Stop)
	TalkerAlias   string `json:"TalkerAlias"`   // free-text operator alias, may arrive on any event
	LinkName      string `json:"LinkName"`      // repeater / hotspot name
	LinkType      string `json:"LinkType"`
	SessionType   string `json:"SessionType"`
	ContextID     string `json:"ContextID"`
	FlagSet       int    `json:"FlagSet"` // 1 = transmission error
}

// Normalize parses a raw feed payload into a canonical Event. It is a pure
// function: alias persistence and all store mutation happen in the tracker.
// Unparseable input or a missing session id returns an error wrapping
// ErrMalformedPayload.
func Normalize(payload []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(w.SessionID) == "" {
		return nil, fmt.Errorf("%w: missing SessionID", ErrMalformedPayload)
	}

	ev := &Event{
		SessionID:   strings.TrimSpace(w.SessionID),
		SourceCall:  strings.TrimSpace(w.SourceCall),
		SourceName:  strings.TrimSpace(w.SourceName),
		Talkgroup:   w.DestinationID,
		StartEpoch:  w.Start,
		StopEpoch:   w.Stop,
		TalkerAlias: strings.TrimSpace(w.TalkerAlias),
		LinkName:    strings.TrimSpace(w.LinkName),
		LinkType:    strings.TrimSpace(w.LinkType),
		SessionType: strings.TrimSpace(w.SessionType),
		ContextID:   strings.TrimSpace(w.ContextID),
		ErrorFlag:   w.FlagSet == 1,
	}
	if w.SourceID != 0 {
		ev.SourceID = strconv.FormatInt(w.SourceID, 10)
	}

	switch w.Event {
	case "Session-Start":
		ev.Kind = KindStart
	case "Session-Update":
		ev.Kind = KindUpdate
	case "Session-Stop":
		ev.Kind = KindStop
	default:
		ev.Kind = KindOther
	}
	return ev, nil
}
