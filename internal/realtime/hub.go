// Package realtime implements the session registry and event broadcaster:
// room-scoped fan-out of sequence-stamped envelopes to live connections, with
// a small per-room replay buffer for reconnection catch-up.
package realtime

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/seq"
)

const (
	// defaultRingSize bounds per-room replay history. Anything beyond this is
	// served by a full resync, which clients treat as the normal path.
	defaultRingSize = 64

	// sendBufferSize is the per-session outbound queue depth.
	sendBufferSize = 32
)

// Session is one live connection. The connection layer owns the outbound
// channel and the done signal; the hub only reads session state under its own
// lock to decide fan-out targets.
type Session struct {
	ID       string
	Outbound chan any
	Done     chan struct{}

	rooms    map[string]struct{}
	lastSent map[string]uint64
	closed   sync.Once
}

// Close signals the connection layer to drop this session. Safe to call more
// than once.
func (s *Session) Close() {
	s.closed.Do(func() { close(s.Done) })
}

// Hub tracks sessions, their room subscriptions, and per-room replay rings.
// Publish is serialized by the hub mutex, so for any one room every subscriber
// observes envelopes in exactly the order Publish was called.
type Hub struct {
	mu       sync.Mutex
	alloc    *seq.Allocator
	sessions map[string]*Session
	rings    map[string]*envelopeRing
	ringSize int
}

// NewHub creates a hub stamping envelopes from the given allocator.
func NewHub(alloc *seq.Allocator) *Hub {
	return &Hub{
		alloc:    alloc,
		sessions: make(map[string]*Session),
		rings:    make(map[string]*envelopeRing),
		ringSize: defaultRingSize,
	}
}

// Register creates and tracks a session for a new connection.
func (h *Hub) Register(sessionID string) *Session {
	s := &Session{
		ID:       sessionID,
		Outbound: make(chan any, sendBufferSize),
		Done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
		lastSent: make(map[string]uint64),
	}
	h.mu.Lock()
	h.sessions[sessionID] = s
	h.mu.Unlock()
	slog.Debug("realtime: session registered", slog.String("session_id", sessionID))
	return s
}

// Unregister removes a session on disconnect.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	if ok {
		s.Close()
		slog.Debug("realtime: session unregistered", slog.String("session_id", sessionID))
	}
}

// Subscribe adds the session to a room. Subscribing twice is a no-op that
// still returns a fresh ack, so a client can always learn what sequence the
// room is at on (re)join.
func (h *Hub) Subscribe(sessionID, room string) (events.SubscribeAck, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return events.SubscribeAck{Room: room}, apperr.NotFound("unknown session %q", sessionID)
	}
	s.rooms[room] = struct{}{}

	ack := events.SubscribeAck{
		Room:      room,
		Success:   true,
		ServerSeq: h.alloc.CurrentGlobal(),
	}
	if isPlaylistRoom(room) {
		ps := h.alloc.Current(room)
		ack.PlaylistSeq = &ps
	}
	return ack, nil
}

// Unsubscribe removes the session from a room. Unknown rooms are ignored.
func (h *Hub) Unsubscribe(sessionID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return apperr.NotFound("unknown session %q", sessionID)
	}
	delete(s.rooms, room)
	delete(s.lastSent, room)
	return nil
}

// Publish stamps the mutation with sequence numbers, records it in the room's
// replay ring, and fans it out to every subscribed session. Delivery is
// fire-and-forget per session; a full outbound queue drops position telemetry
// (last-value-wins) and disconnects the session for anything else, forcing the
// client back through the resync path.
func (h *Hub) Publish(eventType, room, playlistID string, data any) *events.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	env := &events.Envelope{
		EventType: eventType,
		ServerSeq: h.alloc.NextGlobal(),
		Room:      room,
		Data:      data,
		Timestamp: uint64(time.Now().UnixMilli()),
		EventID:   uuid.NewString(),
	}
	if playlistID != "" {
		ps := h.alloc.Next(events.PlaylistRoom(playlistID))
		env.PlaylistSeq = &ps
	}

	ring, ok := h.rings[room]
	if !ok {
		ring = newEnvelopeRing(h.ringSize)
		h.rings[room] = ring
	}
	ring.push(env)

	for _, s := range h.sessions {
		if _, subscribed := s.rooms[room]; !subscribed {
			continue
		}
		select {
		case s.Outbound <- env:
			s.lastSent[room] = env.ServerSeq
		default:
			if eventType == events.TypePlayerPosition {
				continue
			}
			slog.Warn("realtime: outbound queue full, dropping session",
				slog.String("session_id", s.ID), slog.String("room", room))
			s.Close()
		}
	}
	return env
}

// CatchUpResult is the answer to a reconnecting client's watermark report.
type CatchUpResult struct {
	// Replayed holds buffered envelopes newer than the client's watermark,
	// oldest first, for rooms still within retention.
	Replayed []*events.Envelope
	// ResyncRooms lists rooms whose gap exceeds the replay buffer; the client
	// must refetch their full state.
	ResyncRooms []string
}

// CatchUp compares a client's last-known per-room sequence numbers against the
// replay rings. Rooms the session is not subscribed to are ignored.
func (h *Hub) CatchUp(sessionID string, lastRoomSeqs map[string]uint64) (CatchUpResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[sessionID]
	if !ok {
		return CatchUpResult{}, apperr.NotFound("unknown session %q", sessionID)
	}

	var res CatchUpResult
	for room, last := range lastRoomSeqs {
		if _, subscribed := s.rooms[room]; !subscribed {
			continue
		}
		ring, ok := h.rings[room]
		if !ok {
			// Nothing ever published here; the client is current.
			continue
		}
		// A gap exists if anything newer than the client's watermark has
		// already been evicted from the ring.
		if ring.lastEvicted > last {
			res.ResyncRooms = append(res.ResyncRooms, room)
			continue
		}
		for _, env := range ring.since(last) {
			if env.ServerSeq <= s.lastSent[room] {
				continue
			}
			res.Replayed = append(res.Replayed, env)
			s.lastSent[room] = env.ServerSeq
		}
	}
	return res, nil
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func isPlaylistRoom(room string) bool {
	return strings.HasPrefix(room, "playlist:")
}
