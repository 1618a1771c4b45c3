package session

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
		wantErr bool
	}{
		{
			name: "session start",
			payload: `{"SessionID":"1790-abc","Event":"Session-Start","SourceCall":"OE1ABC",
				"SourceID":2321001,"SourceName":"Franz","DestinationID":232,"Start":1700000000,
				"Stop":0,"TalkerAlias":"","LinkName":"OE1XAR","LinkType":"Repeater","SessionType":"Group Voice","FlagSet":0}`,
			want: Event{
				SessionID: "1790-abc", Kind: KindStart, SourceCall: "OE1ABC",
				SourceID: "2321001", SourceName: "Franz", Talkgroup: 232,
				StartEpoch: 1700000000, LinkName: "OE1XAR", LinkType: "Repeater",
				SessionType: "Group Voice",
			},
		},
		{
			name:    "session stop with alias",
			payload: `{"SessionID":"s2","Event":"Session-Stop","SourceCall":"K1ABC","DestinationID":91,"Start":1000,"Stop":1010,"TalkerAlias":"Op Name"}`,
			want: Event{
				SessionID: "s2", Kind: KindStop, SourceCall: "K1ABC", Talkgroup: 91,
				StartEpoch: 1000, StopEpoch: 1010, TalkerAlias: "Op Name",
			},
		},
		{
			name:    "error flag set",
			payload: `{"SessionID":"s3","Event":"Session-Stop","DestinationID":91,"FlagSet":1}`,
			want:    Event{SessionID: "s3", Kind: KindStop, Talkgroup: 91, ErrorFlag: true},
		},
		{
			name:    "unknown event kind maps to other",
			payload: `{"SessionID":"s4","Event":"Session-Ping","DestinationID":1}`,
			want:    Event{SessionID: "s4", Kind: KindOther, Talkgroup: 1},
		},
		{
			name:    "whitespace trimmed",
			payload: `{"SessionID":" s5 ","Event":"Session-Start","SourceCall":" K1ABC ","DestinationID":1}`,
			want:    Event{SessionID: "s5", Kind: KindStart, SourceCall: "K1ABC", Talkgroup: 1},
		},
		{
			name:    "not json",
			payload: `Session-Start OE1ABC`,
			wantErr: true,
		},
		{
			name:    "missing session id",
			payload: `{"Event":"Session-Start","DestinationID":1}`,
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("expected ErrMalformedPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if *got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, *got)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	pairs := map[Kind]string{KindStart: "start", KindUpdate: "update", KindStop: "stop", KindOther: "other"}
	for k, want := range pairs {
		if got := k.String(); got != want {
			t.Fatalf("Kind %d: expected %q, got %q", k, want, got)
		}
	}
}
