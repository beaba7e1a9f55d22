package realtime

import (
	"sync"
	"testing"

	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/seq"
)

func newTestHub() *Hub {
	return NewHub(seq.NewAllocator(0))
}

func drain(s *Session) []*events.Envelope {
	var out []*events.Envelope
	for {
		select {
		case msg := <-s.Outbound:
			if env, ok := msg.(*events.Envelope); ok {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	h := newTestHub()
	s := h.Register("c1")
	defer h.Unregister("c1")

	if _, err := h.Subscribe("c1", events.RoomGlobal); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	h.Publish(events.TypePlaylistCreated, events.RoomGlobal, "", events.PlaylistPayload{PlaylistID: "p1"})

	got := drain(s)
	if len(got) != 1 {
		t.Fatalf("received %d envelopes, want 1", len(got))
	}
	if got[0].EventType != events.TypePlaylistCreated {
		t.Errorf("EventType = %q, want %q", got[0].EventType, events.TypePlaylistCreated)
	}
	if got[0].EventID == "" {
		t.Error("EventID should be set")
	}
}

func TestRoomIsolation(t *testing.T) {
	h := newTestHub()
	s1 := h.Register("c1")
	s2 := h.Register("c2")
	defer h.Unregister("c1")
	defer h.Unregister("c2")

	h.Subscribe("c1", events.PlaylistRoom("a"))
	h.Subscribe("c2", events.PlaylistRoom("b"))

	h.Publish(events.TypeTrackAdded, events.PlaylistRoom("a"), "a", nil)

	if got := drain(s1); len(got) != 1 {
		t.Errorf("subscriber of playlist:a received %d envelopes, want 1", len(got))
	}
	if got := drain(s2); len(got) != 0 {
		t.Errorf("subscriber of playlist:b received %d envelopes, want 0", len(got))
	}
}

func TestTwoSubscribersReceiveIdenticalEnvelope(t *testing.T) {
	h := newTestHub()
	s1 := h.Register("c1")
	s2 := h.Register("c2")
	defer h.Unregister("c1")
	defer h.Unregister("c2")

	room := events.PlaylistRoom("abc")
	h.Subscribe("c1", room)
	h.Subscribe("c2", room)

	h.Publish(events.TypeTrackAdded, room, "abc", events.TrackPayload{PlaylistID: "abc", TrackID: "t1"})

	got1 := drain(s1)
	got2 := drain(s2)
	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("received %d and %d envelopes, want 1 and 1", len(got1), len(got2))
	}
	if got1[0].EventID != got2[0].EventID {
		t.Errorf("EventID differs between subscribers: %q vs %q", got1[0].EventID, got2[0].EventID)
	}
}

func TestOrderingWithinRoom(t *testing.T) {
	h := newTestHub()
	s := h.Register("c1")
	defer h.Unregister("c1")
	h.Subscribe("c1", events.RoomGlobal)

	var published []uint64
	for i := 0; i < 8; i++ {
		env := h.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", nil)
		published = append(published, env.ServerSeq)
	}

	got := drain(s)
	if len(got) != len(published) {
		t.Fatalf("received %d envelopes, want %d", len(got), len(published))
	}
	for i, env := range got {
		if env.ServerSeq != published[i] {
			t.Errorf("envelope %d has seq %d, want %d", i, env.ServerSeq, published[i])
		}
		if i > 0 && got[i].ServerSeq <= got[i-1].ServerSeq {
			t.Errorf("seq not strictly increasing at %d: %d <= %d", i, got[i].ServerSeq, got[i-1].ServerSeq)
		}
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := newTestHub()
	s := h.Register("c1")
	defer h.Unregister("c1")

	room := events.PlaylistRoom("p1")
	ack1, err := h.Subscribe("c1", room)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	ack2, err := h.Subscribe("c1", room)
	if err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}
	if !ack1.Success || !ack2.Success {
		t.Error("both acks should report success")
	}
	if ack2.PlaylistSeq == nil {
		t.Fatal("playlist room ack should carry a playlist seq")
	}

	// A double subscription must not cause duplicate fan-out.
	h.Publish(events.TypeTrackAdded, room, "p1", nil)
	if got := drain(s); len(got) != 1 {
		t.Errorf("received %d envelopes after double subscribe, want 1", len(got))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub()
	s := h.Register("c1")
	defer h.Unregister("c1")

	h.Subscribe("c1", events.RoomGlobal)
	h.Unsubscribe("c1", events.RoomGlobal)

	h.Publish(events.TypePlaylistCreated, events.RoomGlobal, "", nil)
	if got := drain(s); len(got) != 0 {
		t.Errorf("received %d envelopes after unsubscribe, want 0", len(got))
	}
}

func TestPlaylistSeqStampedOnlyForPlaylistMutations(t *testing.T) {
	h := newTestHub()

	env := h.Publish(events.TypeTrackAdded, events.PlaylistRoom("p1"), "p1", nil)
	if env.PlaylistSeq == nil {
		t.Fatal("playlist mutation should carry a playlist seq")
	}
	if *env.PlaylistSeq != 1 {
		t.Errorf("PlaylistSeq = %d, want 1", *env.PlaylistSeq)
	}

	env = h.Publish(events.TypePlayerState, events.RoomGlobal, "", nil)
	if env.PlaylistSeq != nil {
		t.Error("global event should not carry a playlist seq")
	}
}

func TestCatchUpReplaysBufferedEnvelopes(t *testing.T) {
	h := newTestHub()
	h.Register("c1")
	defer h.Unregister("c1")
	h.Subscribe("c1", events.RoomGlobal)

	// Published before the client recorded any watermark updates.
	first := h.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", nil)
	second := h.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", nil)

	res, err := h.CatchUp("c1", map[string]uint64{events.RoomGlobal: first.ServerSeq})
	if err != nil {
		t.Fatalf("CatchUp() error = %v", err)
	}
	if len(res.ResyncRooms) != 0 {
		t.Fatalf("ResyncRooms = %v, want none", res.ResyncRooms)
	}
	if len(res.Replayed) != 1 || res.Replayed[0].ServerSeq != second.ServerSeq {
		t.Fatalf("Replayed = %v, want exactly the second envelope", res.Replayed)
	}
}

func TestCatchUpRequiresResyncBeyondRetention(t *testing.T) {
	h := newTestHub()
	h.ringSize = 4
	h.Register("c1")
	defer h.Unregister("c1")
	h.Subscribe("c1", events.RoomGlobal)

	for i := 0; i < 10; i++ {
		h.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", nil)
	}

	res, err := h.CatchUp("c1", map[string]uint64{events.RoomGlobal: 1})
	if err != nil {
		t.Fatalf("CatchUp() error = %v", err)
	}
	if len(res.ResyncRooms) != 1 || res.ResyncRooms[0] != events.RoomGlobal {
		t.Errorf("ResyncRooms = %v, want [%q]", res.ResyncRooms, events.RoomGlobal)
	}
	if len(res.Replayed) != 0 {
		t.Errorf("Replayed = %d envelopes, want 0 when resync is required", len(res.Replayed))
	}
}

func TestFullQueueDropsPositionButNotState(t *testing.T) {
	h := newTestHub()
	s := h.Register("c1")
	h.Subscribe("c1", events.RoomGlobal)

	// Fill the outbound queue without draining.
	for i := 0; i < sendBufferSize; i++ {
		h.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", nil)
	}

	// Position telemetry on a full queue is silently dropped.
	h.Publish(events.TypePlayerPosition, events.RoomGlobal, "", nil)
	select {
	case <-s.Done:
		t.Fatal("position overflow should not drop the session")
	default:
	}

	// A state event on a full queue disconnects the session.
	h.Publish(events.TypePlayerState, events.RoomGlobal, "", nil)
	select {
	case <-s.Done:
	default:
		t.Fatal("state overflow should drop the session")
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := newTestHub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			s := h.Register(id)
			h.Subscribe(id, events.RoomGlobal)
			h.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", nil)
			drain(s)
			h.Unregister(id)
		}(i)
	}
	wg.Wait()
}
