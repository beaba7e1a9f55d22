package events

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeWireKeys(t *testing.T) {
	ps := uint64(3)
	env := Envelope{
		EventType:   TypeTrackAdded,
		ServerSeq:   7,
		PlaylistSeq: &ps,
		Room:        PlaylistRoom("abc"),
		Data:        map[string]any{"trackId": "t1"},
		Timestamp:   1700000000000,
		EventID:     "11111111-2222-3333-4444-555555555555",
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	want := []string{"event_type", "server_seq", "playlist_seq", "room", "data", "timestamp", "event_id"}
	for _, k := range want {
		if _, ok := keys[k]; !ok {
			t.Errorf("envelope JSON missing key %q", k)
		}
	}
	if len(keys) != len(want) {
		t.Errorf("envelope JSON has %d keys, want %d: %s", len(keys), len(want), raw)
	}
}

func TestPlaylistRoom(t *testing.T) {
	if got := PlaylistRoom("abc"); got != "playlist:abc" {
		t.Errorf("PlaylistRoom(abc) = %q, want %q", got, "playlist:abc")
	}
}
