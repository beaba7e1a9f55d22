// Package upload implements the chunked, resumable upload session state
// machine. Chunks arrive as independent, possibly out-of-order HTTP calls and
// are staged per session; finalize concatenates them into the library and
// publishes the new track.
package upload

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/storage"
	"golang.org/x/crypto/blake2b"
)

// Status is the lifecycle state of an upload session. Transitions only move
// forward; Failed and Expired are reachable from any non-terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusFinalizing Status = "finalizing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

func (s Status) terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusExpired
}

const maxFilenameLen = 255

// Publisher fans a mutation out to subscribed sessions.
type Publisher interface {
	Publish(eventType, room, playlistID string, data any) *events.Envelope
}

// Store is the slice of the repository the upload manager needs.
type Store interface {
	GetPlaylist(ctx context.Context, id string) (storage.Playlist, error)
	CreateTrack(ctx context.Context, t storage.Track) error
}

// Session tracks one chunked transfer. All fields are guarded by mu.
type Session struct {
	mu sync.Mutex

	ID             string
	PlaylistID     string
	Filename       string
	TotalSize      int64
	ChunkSize      int64
	ExpectedChunks int
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time

	received      []bool
	receivedCount int
	bytesReceived int64
}

// Snapshot is a read-only view of a session for status responses.
type Snapshot struct {
	ID             string
	PlaylistID     string
	Filename       string
	TotalSize      int64
	ChunkSize      int64
	ExpectedChunks int
	ReceivedChunks int
	BytesReceived  int64
	Status         Status
	Progress       float64
}

// Manager owns all upload sessions and their staging directories.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	stagingDir  string
	tracksDir   string
	maxFileSize int64
	store       Store
	pub         Publisher
}

// NewManager creates an upload manager staging chunks under stagingDir and
// placing finalized files under tracksDir.
func NewManager(stagingDir, tracksDir string, maxFileSize int64, store Store, pub Publisher) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		stagingDir:  stagingDir,
		tracksDir:   tracksDir,
		maxFileSize: maxFileSize,
		store:       store,
		pub:         pub,
	}
}

// Init validates the request and creates a Pending session with its staging
// directory.
func (m *Manager) Init(ctx context.Context, playlistID, filename string, totalSize, chunkSize int64) (Snapshot, error) {
	if err := validateFilename(filename); err != nil {
		return Snapshot{}, err
	}
	if totalSize <= 0 {
		return Snapshot{}, apperr.Validation("totalSize must be positive, got %d", totalSize)
	}
	if m.maxFileSize > 0 && totalSize > m.maxFileSize {
		return Snapshot{}, apperr.Validation("totalSize %d exceeds limit %d", totalSize, m.maxFileSize)
	}
	if chunkSize <= 0 {
		return Snapshot{}, apperr.Validation("chunkSize must be positive, got %d", chunkSize)
	}

	if _, err := m.store.GetPlaylist(ctx, playlistID); err != nil {
		return Snapshot{}, err
	}

	expected := int((totalSize + chunkSize - 1) / chunkSize)
	now := time.Now()
	s := &Session{
		ID:             uuid.NewString(),
		PlaylistID:     playlistID,
		Filename:       filename,
		TotalSize:      totalSize,
		ChunkSize:      chunkSize,
		ExpectedChunks: expected,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		received:       make([]bool, expected),
	}

	if err := os.MkdirAll(m.sessionDir(s.ID), 0o755); err != nil {
		return Snapshot{}, apperr.TransientInfra(err, "failed to create staging directory")
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("upload: session created",
		slog.String("upload_id", s.ID),
		slog.String("playlist_id", playlistID),
		slog.String("filename", filename),
		slog.Int64("total_size", totalSize),
		slog.Int("expected_chunks", expected))
	return s.snapshot(), nil
}

// ReceiveChunk stages one chunk. Re-sending an already-received index
// overwrites the staged bytes without double-counting progress.
func (m *Manager) ReceiveChunk(id string, index int, data []byte) (float64, error) {
	s, err := m.get(id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusPending && s.Status != StatusInProgress {
		return 0, apperr.InvalidState("upload %q is %s, cannot accept chunks", id, s.Status)
	}
	if index < 0 || index >= s.ExpectedChunks {
		return 0, apperr.Validation("chunk index %d out of range [0, %d)", index, s.ExpectedChunks)
	}
	if want := s.chunkLen(index); int64(len(data)) != want {
		return 0, apperr.Validation("chunk %d has %d bytes, want %d", index, len(data), want)
	}

	if err := os.WriteFile(m.chunkPath(id, index), data, 0o644); err != nil {
		return 0, apperr.TransientInfra(err, "failed to stage chunk %d", index)
	}

	if !s.received[index] {
		s.received[index] = true
		s.receivedCount++
		s.bytesReceived += int64(len(data))
	}
	s.Status = StatusInProgress
	s.UpdatedAt = time.Now()

	progress := s.progress()
	m.pub.Publish(events.TypeUploadProgress, events.PlaylistRoom(s.PlaylistID), s.PlaylistID,
		events.UploadPayload{
			UploadID:   s.ID,
			PlaylistID: s.PlaylistID,
			Filename:   s.Filename,
			Status:     string(s.Status),
			Progress:   progress,
		})
	return progress, nil
}

// Finalize concatenates the staged chunks in index order into the library,
// optionally verifies a caller-supplied BLAKE2b-256 checksum, records the
// track, and publishes the track-added mutation. On any failure the session
// moves to Failed and no partial file is left behind.
func (m *Manager) Finalize(ctx context.Context, id, checksum string) (storage.Track, error) {
	s, err := m.get(id)
	if err != nil {
		return storage.Track{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.Status == StatusFinalizing || s.Status == StatusComplete:
		return storage.Track{}, apperr.Conflict("upload %q already finalized", id)
	case s.Status.terminal():
		return storage.Track{}, apperr.InvalidState("upload %q is %s", id, s.Status)
	case s.receivedCount != s.ExpectedChunks:
		return storage.Track{}, apperr.InvalidState(
			"incomplete upload: %d of %d chunks received", s.receivedCount, s.ExpectedChunks)
	}
	s.Status = StatusFinalizing

	trackID := uuid.NewString()
	finalPath := filepath.Join(m.tracksDir, trackID+filepath.Ext(s.Filename))

	if err := m.assemble(s, finalPath, checksum); err != nil {
		s.Status = StatusFailed
		m.cleanupStaging(id)
		return storage.Track{}, err
	}

	track := storage.Track{
		ID:         trackID,
		PlaylistID: s.PlaylistID,
		Title:      strings.TrimSuffix(s.Filename, filepath.Ext(s.Filename)),
		Filename:   s.Filename,
		FilePath:   finalPath,
		SizeBytes:  s.TotalSize,
	}
	if err := m.store.CreateTrack(ctx, track); err != nil {
		os.Remove(finalPath)
		s.Status = StatusFailed
		m.cleanupStaging(id)
		return storage.Track{}, err
	}

	s.Status = StatusComplete
	s.UpdatedAt = time.Now()
	m.cleanupStaging(id)

	payload := events.TrackPayload{
		PlaylistID: s.PlaylistID,
		TrackID:    track.ID,
		Title:      track.Title,
	}
	m.pub.Publish(events.TypeTrackAdded, events.PlaylistRoom(s.PlaylistID), s.PlaylistID, payload)
	m.pub.Publish(events.TypeTrackAdded, events.RoomGlobal, "", payload)

	slog.Info("upload: finalized",
		slog.String("upload_id", id),
		slog.String("track_id", track.ID),
		slog.String("file", finalPath))
	return track, nil
}

// Cancel aborts a non-terminal session and removes its staged chunks.
func (m *Manager) Cancel(id string) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status.terminal() {
		return apperr.InvalidState("upload %q is already %s", id, s.Status)
	}
	s.Status = StatusFailed
	s.UpdatedAt = time.Now()
	m.cleanupStaging(id)
	slog.Info("upload: cancelled", slog.String("upload_id", id))
	return nil
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (Snapshot, error) {
	s, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// ExpireIdle moves sessions with no activity past maxIdle to Expired and
// removes their staging files. Terminal sessions past the window are dropped
// from the registry. Returns the number of expired sessions.
func (m *Manager) ExpireIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	now := time.Now()
	expired := 0
	for _, s := range sessions {
		s.mu.Lock()
		idle := now.Sub(s.UpdatedAt)
		switch {
		case !s.Status.terminal() && idle > maxIdle:
			s.Status = StatusExpired
			m.cleanupStaging(s.ID)
			expired++
			slog.Info("upload: session expired", slog.String("upload_id", s.ID))
			s.mu.Unlock()
		case s.Status.terminal() && idle > maxIdle:
			s.mu.Unlock()
			m.mu.Lock()
			delete(m.sessions, s.ID)
			m.mu.Unlock()
		default:
			s.mu.Unlock()
		}
	}
	return expired
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.NotFound("upload session %q not found", id)
	}
	return s, nil
}

// assemble writes the staged chunks in index order to finalPath, verifying the
// checksum if one was supplied. The partial output is removed on any failure.
func (m *Manager) assemble(s *Session, finalPath, checksum string) error {
	out, err := os.Create(finalPath)
	if err != nil {
		return apperr.TransientInfra(err, "failed to create track file")
	}

	hasher, _ := blake2b.New256(nil)
	w := io.MultiWriter(out, hasher)

	for i := 0; i < s.ExpectedChunks; i++ {
		chunk, err := os.ReadFile(m.chunkPath(s.ID, i))
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return apperr.TransientInfra(err, "failed to read staged chunk %d", i)
		}
		if _, err := w.Write(chunk); err != nil {
			out.Close()
			os.Remove(finalPath)
			return apperr.TransientInfra(err, "failed to write track file")
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return apperr.TransientInfra(err, "failed to close track file")
	}

	if checksum != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, checksum) {
			os.Remove(finalPath)
			return apperr.Validation("checksum mismatch: got %s", got)
		}
	}
	return nil
}

func (m *Manager) sessionDir(id string) string {
	return filepath.Join(m.stagingDir, id)
}

func (m *Manager) chunkPath(id string, index int) string {
	return filepath.Join(m.sessionDir(id), fmt.Sprintf("chunk_%06d", index))
}

func (m *Manager) cleanupStaging(id string) {
	if err := os.RemoveAll(m.sessionDir(id)); err != nil {
		slog.Error("upload: failed to remove staging directory",
			slog.String("upload_id", id), slog.String("error", err.Error()))
	}
}

// chunkLen returns the expected byte length of the chunk at index; every chunk
// is full-sized except possibly the last.
func (s *Session) chunkLen(index int) int64 {
	if index == s.ExpectedChunks-1 {
		if rem := s.TotalSize % s.ChunkSize; rem != 0 {
			return rem
		}
	}
	return s.ChunkSize
}

// progress is recomputed from the bitmap, never accumulated, so retried
// chunks cannot drift it.
func (s *Session) progress() float64 {
	return float64(s.receivedCount) / float64(s.ExpectedChunks) * 100
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:             s.ID,
		PlaylistID:     s.PlaylistID,
		Filename:       s.Filename,
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		ExpectedChunks: s.ExpectedChunks,
		ReceivedChunks: s.receivedCount,
		BytesReceived:  s.bytesReceived,
		Status:         s.Status,
		Progress:       s.progress(),
	}
}

func validateFilename(name string) error {
	if name == "" {
		return apperr.Validation("filename must not be empty")
	}
	if len(name) > maxFilenameLen {
		return apperr.Validation("filename exceeds %d characters", maxFilenameLen)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return apperr.Validation("filename %q contains path characters", name)
	}
	if strings.HasPrefix(name, ".") {
		return apperr.Validation("filename %q must not start with a dot", name)
	}
	return nil
}
