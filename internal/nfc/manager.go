// Package nfc owns the tag-association session: a short-lived, single-writer
// process that pairs the next scanned tag with a target playlist. Outside an
// association session, scanned tags resolve to their mapped playlist and
// trigger playback.
package nfc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/storage"
)

// State is the lifecycle state of an association session.
type State string

const (
	StateListening State = "listening"
	StateDuplicate State = "duplicate"
	StateSuccess   State = "success"
	StateStopped   State = "stopped"
	StateTimeout   State = "timeout"
	StateError     State = "error"
)

func (s State) terminal() bool {
	return s == StateSuccess || s == StateStopped || s == StateTimeout || s == StateError
}

// Publisher fans a mutation out to subscribed sessions.
type Publisher interface {
	Publish(eventType, room, playlistID string, data any) *events.Envelope
}

// Store is the slice of the repository the association manager needs.
type Store interface {
	GetTagMapping(ctx context.Context, tagID string) (storage.TagMapping, bool, error)
	PutTagMapping(ctx context.Context, tagID, playlistID string) error
}

// Player starts playback when a mapped tag is scanned outside an association
// session.
type Player interface {
	PlayPlaylist(ctx context.Context, playlistID string) error
}

// Session is a snapshot of the active association session.
type Session struct {
	AssocID            string
	PlaylistID         string
	State              State
	DetectedTagID      string
	ConflictPlaylistID string
	StartedAt          time.Time
	TimeoutAt          time.Time
}

// Manager holds at most one active association session per server.
type Manager struct {
	mu     sync.Mutex
	cur    *Session
	store  Store
	pub    Publisher
	player Player
}

// NewManager creates an association manager. player may be nil when no
// playback pipeline is attached.
func NewManager(store Store, pub Publisher, player Player) *Manager {
	return &Manager{store: store, pub: pub, player: player}
}

// Start begins listening for the next scanned tag. A new session supersedes a
// non-terminal session for the same playlist; a session for a different
// playlist must be stopped first.
func (m *Manager) Start(playlistID string, timeout time.Duration) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil && !m.cur.State.terminal() {
		if m.cur.PlaylistID != playlistID {
			return Session{}, apperr.Conflict(
				"association session already active for playlist %q", m.cur.PlaylistID)
		}
		slog.Info("nfc: superseding association session",
			slog.String("assoc_id", m.cur.AssocID), slog.String("playlist_id", playlistID))
	}

	now := time.Now()
	m.cur = &Session{
		AssocID:    uuid.NewString(),
		PlaylistID: playlistID,
		State:      StateListening,
		StartedAt:  now,
		TimeoutAt:  now.Add(timeout),
	}
	m.publishStatusLocked()
	slog.Info("nfc: association session started",
		slog.String("assoc_id", m.cur.AssocID),
		slog.String("playlist_id", playlistID),
		slog.Duration("timeout", timeout))
	return *m.cur, nil
}

// HandleTag processes a raw tag-detected event from the reader hardware.
// During a Listening session it drives the association flow; otherwise it
// resolves the mapping and starts playback of the mapped playlist.
func (m *Manager) HandleTag(ctx context.Context, tagID string) error {
	m.mu.Lock()

	if m.cur == nil || m.cur.State != StateListening {
		m.mu.Unlock()
		return m.playMapped(ctx, tagID)
	}

	mapping, exists, err := m.store.GetTagMapping(ctx, tagID)
	if err != nil {
		m.cur.State = StateError
		m.publishStatusLocked()
		m.cur = nil
		m.mu.Unlock()
		return err
	}

	if exists && mapping.PlaylistID != m.cur.PlaylistID {
		// The tag already maps elsewhere. Record the conflict and wait for an
		// explicit override; nothing is written yet.
		m.cur.State = StateDuplicate
		m.cur.DetectedTagID = tagID
		m.cur.ConflictPlaylistID = mapping.PlaylistID
		m.publishStatusLocked()
		m.mu.Unlock()
		slog.Info("nfc: duplicate mapping detected",
			slog.String("tag_id", tagID),
			slog.String("conflict_playlist_id", mapping.PlaylistID))
		return nil
	}

	if err := m.store.PutTagMapping(ctx, tagID, m.cur.PlaylistID); err != nil {
		m.cur.State = StateError
		m.publishStatusLocked()
		m.cur = nil
		m.mu.Unlock()
		return err
	}
	m.cur.State = StateSuccess
	m.cur.DetectedTagID = tagID
	m.publishStatusLocked()
	playlistID := m.cur.PlaylistID
	m.cur = nil
	m.mu.Unlock()

	slog.Info("nfc: tag associated",
		slog.String("tag_id", tagID), slog.String("playlist_id", playlistID))
	return nil
}

// Override rewrites an existing mapping after a Duplicate detection. Only
// valid while the active session is in Duplicate for exactly this tag and
// target playlist.
func (m *Manager) Override(ctx context.Context, tagID, playlistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.cur == nil:
		return apperr.NotFound("no active association session")
	case m.cur.State != StateDuplicate:
		return apperr.InvalidState("association session is %s, not duplicate", m.cur.State)
	case m.cur.DetectedTagID != tagID || m.cur.PlaylistID != playlistID:
		return apperr.Validation("override does not match the pending duplicate")
	}

	if err := m.store.PutTagMapping(ctx, tagID, playlistID); err != nil {
		m.cur.State = StateError
		m.publishStatusLocked()
		m.cur = nil
		return err
	}
	m.cur.State = StateSuccess
	m.publishStatusLocked()
	m.cur = nil

	slog.Info("nfc: mapping overridden",
		slog.String("tag_id", tagID), slog.String("playlist_id", playlistID))
	return nil
}

// Stop cancels the active session from Listening or Duplicate.
func (m *Manager) Stop(assocID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.AssocID != assocID {
		return apperr.NotFound("association session %q not found", assocID)
	}
	if m.cur.State.terminal() {
		return apperr.InvalidState("association session is already %s", m.cur.State)
	}
	m.cur.State = StateStopped
	m.publishStatusLocked()
	m.cur = nil
	slog.Info("nfc: association session stopped", slog.String("assoc_id", assocID))
	return nil
}

// Active returns the current session, if any.
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return *m.cur, true
}

// SweepTimeout expires the active session once its deadline passes. Duplicate
// sessions expire too so an abandoned conflict cannot pin the singleton slot.
// Returns true if a session was expired.
func (m *Manager) SweepTimeout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.State.terminal() || time.Now().Before(m.cur.TimeoutAt) {
		return false
	}
	assocID := m.cur.AssocID
	m.cur.State = StateTimeout
	m.publishStatusLocked()
	m.cur = nil
	slog.Info("nfc: association session timed out", slog.String("assoc_id", assocID))
	return true
}

// playMapped resolves a tag scanned outside an association session.
func (m *Manager) playMapped(ctx context.Context, tagID string) error {
	mapping, exists, err := m.store.GetTagMapping(ctx, tagID)
	if err != nil {
		return err
	}
	if !exists {
		slog.Info("nfc: unmapped tag scanned", slog.String("tag_id", tagID))
		return apperr.NotFound("tag %q is not mapped", tagID)
	}
	if m.player == nil {
		return nil
	}
	slog.Info("nfc: starting playback for tag",
		slog.String("tag_id", tagID), slog.String("playlist_id", mapping.PlaylistID))
	return m.player.PlayPlaylist(ctx, mapping.PlaylistID)
}

// publishStatusLocked broadcasts the session's current state on the nfc room.
// Callers hold m.mu and m.cur is non-nil.
func (m *Manager) publishStatusLocked() {
	m.pub.Publish(events.TypeNFCStatus, events.RoomNFC, "", events.NFCPayload{
		AssocID:            m.cur.AssocID,
		State:              string(m.cur.State),
		PlaylistID:         m.cur.PlaylistID,
		TagID:              m.cur.DetectedTagID,
		ConflictPlaylistID: m.cur.ConflictPlaylistID,
	})
}
