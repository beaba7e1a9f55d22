// Package storage provides the sqlite-backed repositories for playlists,
// tracks, NFC tag mappings, and the sequence watermark.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tonebox/backend/internal/apperr"
)

// Playlist is a named, ordered group of tracks.
type Playlist struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Track is one audio file inside a playlist. Position is the 0-based play
// order within the playlist.
type Track struct {
	ID         string
	PlaylistID string
	Title      string
	Filename   string
	FilePath   string
	SizeBytes  int64
	DurationMS int64
	Position   int
	CreatedAt  time.Time
}

// TagMapping binds a physical NFC tag id to a playlist.
type TagMapping struct {
	TagID      string
	PlaylistID string
	CreatedAt  time.Time
}

// Store wraps the sqlite handle with typed queries.
type Store struct {
	db *sql.DB
}

// New creates a Store over an already-migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePlaylist inserts a playlist.
func (s *Store) CreatePlaylist(ctx context.Context, p Playlist) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (id, name) VALUES (?, ?)`, p.ID, p.Name)
	if err != nil {
		return apperr.TransientInfra(err, "failed to create playlist")
	}
	return nil
}

// GetPlaylist returns one playlist by id.
func (s *Store) GetPlaylist(ctx context.Context, id string) (Playlist, error) {
	var p Playlist
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Playlist{}, apperr.NotFound("playlist %q not found", id)
	}
	if err != nil {
		return Playlist{}, apperr.TransientInfra(err, "failed to read playlist")
	}
	return p, nil
}

// ListPlaylists returns all playlists ordered by creation time.
func (s *Store) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM playlists ORDER BY created_at`)
	if err != nil {
		return nil, apperr.TransientInfra(err, "failed to list playlists")
	}
	defer rows.Close()

	var out []Playlist
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, apperr.TransientInfra(err, "failed to scan playlist")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TrackCounts returns the number of tracks per playlist id.
func (s *Store) TrackCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT playlist_id, COUNT(*) FROM tracks GROUP BY playlist_id`)
	if err != nil {
		return nil, apperr.TransientInfra(err, "failed to count tracks")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, apperr.TransientInfra(err, "failed to scan track count")
		}
		out[id] = n
	}
	return out, rows.Err()
}

// RenamePlaylist updates a playlist's display name.
func (s *Store) RenamePlaylist(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE playlists SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return apperr.TransientInfra(err, "failed to rename playlist")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("playlist %q not found", id)
	}
	return nil
}

// DeletePlaylist removes a playlist; tracks and tag mappings cascade.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return apperr.TransientInfra(err, "failed to delete playlist")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("playlist %q not found", id)
	}
	return nil
}

// CreateTrack appends a track at the end of its playlist.
func (s *Store) CreateTrack(ctx context.Context, t Track) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (id, playlist_id, title, filename, file_path, size_bytes, duration_ms, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?,
		         (SELECT COALESCE(MAX(position) + 1, 0) FROM tracks WHERE playlist_id = ?))`,
		t.ID, t.PlaylistID, t.Title, t.Filename, t.FilePath, t.SizeBytes, t.DurationMS, t.PlaylistID)
	if err != nil {
		return apperr.TransientInfra(err, "failed to create track")
	}
	return nil
}

// GetTrack returns one track by id.
func (s *Store) GetTrack(ctx context.Context, id string) (Track, error) {
	var t Track
	err := s.db.QueryRowContext(ctx,
		`SELECT id, playlist_id, title, filename, file_path, size_bytes, duration_ms, position, created_at
		 FROM tracks WHERE id = ?`, id).
		Scan(&t.ID, &t.PlaylistID, &t.Title, &t.Filename, &t.FilePath,
			&t.SizeBytes, &t.DurationMS, &t.Position, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Track{}, apperr.NotFound("track %q not found", id)
	}
	if err != nil {
		return Track{}, apperr.TransientInfra(err, "failed to read track")
	}
	return t, nil
}

// ListTracks returns a playlist's tracks in play order.
func (s *Store) ListTracks(ctx context.Context, playlistID string) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, playlist_id, title, filename, file_path, size_bytes, duration_ms, position, created_at
		 FROM tracks WHERE playlist_id = ? ORDER BY position`, playlistID)
	if err != nil {
		return nil, apperr.TransientInfra(err, "failed to list tracks")
	}
	defer rows.Close()

	var out []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.PlaylistID, &t.Title, &t.Filename, &t.FilePath,
			&t.SizeBytes, &t.DurationMS, &t.Position, &t.CreatedAt); err != nil {
			return nil, apperr.TransientInfra(err, "failed to scan track")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTrack removes a track and compacts positions behind it.
func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.TransientInfra(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var playlistID string
	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT playlist_id, position FROM tracks WHERE id = ?`, id).
		Scan(&playlistID, &position)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("track %q not found", id)
	}
	if err != nil {
		return apperr.TransientInfra(err, "failed to read track")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id); err != nil {
		return apperr.TransientInfra(err, "failed to delete track")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tracks SET position = position - 1 WHERE playlist_id = ? AND position > ?`,
		playlistID, position); err != nil {
		return apperr.TransientInfra(err, "failed to compact track positions")
	}

	if err := tx.Commit(); err != nil {
		return apperr.TransientInfra(err, "failed to commit track deletion")
	}
	return nil
}

// GetTagMapping returns the playlist mapped to a tag, if any.
func (s *Store) GetTagMapping(ctx context.Context, tagID string) (TagMapping, bool, error) {
	var m TagMapping
	err := s.db.QueryRowContext(ctx,
		`SELECT tag_id, playlist_id, created_at FROM tag_mappings WHERE tag_id = ?`, tagID).
		Scan(&m.TagID, &m.PlaylistID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TagMapping{}, false, nil
	}
	if err != nil {
		return TagMapping{}, false, apperr.TransientInfra(err, "failed to read tag mapping")
	}
	return m, true, nil
}

// PutTagMapping creates or rewrites the mapping for a tag.
func (s *Store) PutTagMapping(ctx context.Context, tagID, playlistID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tag_mappings (tag_id, playlist_id) VALUES (?, ?)
		 ON CONFLICT(tag_id) DO UPDATE SET playlist_id = excluded.playlist_id`,
		tagID, playlistID)
	if err != nil {
		return apperr.TransientInfra(err, "failed to write tag mapping")
	}
	return nil
}

// DeleteTagMapping removes a tag's mapping. Missing mappings are not an error.
func (s *Store) DeleteTagMapping(ctx context.Context, tagID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM tag_mappings WHERE tag_id = ?`, tagID); err != nil {
		return apperr.TransientInfra(err, "failed to delete tag mapping")
	}
	return nil
}

// SeqWatermark returns the persisted global sequence watermark.
func (s *Store) SeqWatermark(ctx context.Context) (uint64, error) {
	var v uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT global_seq FROM seq_watermark WHERE id = 1`).Scan(&v)
	if err != nil {
		return 0, apperr.TransientInfra(err, "failed to read sequence watermark")
	}
	return v, nil
}

// SaveSeqWatermark persists the global sequence watermark. It never moves the
// stored value backward.
func (s *Store) SaveSeqWatermark(ctx context.Context, v uint64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE seq_watermark SET global_seq = ? WHERE id = 1 AND global_seq < ?`, v, v); err != nil {
		return apperr.TransientInfra(err, "failed to save sequence watermark")
	}
	return nil
}
