package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return New(db)
}

func mustCreatePlaylist(t *testing.T, s *Store, id, name string) {
	t.Helper()
	if err := s.CreatePlaylist(context.Background(), Playlist{ID: id, Name: name, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreatePlaylist(%s) error = %v", id, err)
	}
}

func mustCreateTrack(t *testing.T, s *Store, id, playlistID, title string) {
	t.Helper()
	err := s.CreateTrack(context.Background(), Track{
		ID:         id,
		PlaylistID: playlistID,
		Title:      title,
		Filename:   title + ".mp3",
		FilePath:   "/data/tracks/" + id + ".mp3",
		SizeBytes:  1000,
	})
	if err != nil {
		t.Fatalf("CreateTrack(%s) error = %v", id, err)
	}
}

func TestPlaylistCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreatePlaylist(t, s, "p1", "First")

	p, err := s.GetPlaylist(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPlaylist() error = %v", err)
	}
	if p.Name != "First" {
		t.Errorf("Name = %q, want First", p.Name)
	}

	if err := s.RenamePlaylist(ctx, "p1", "Renamed"); err != nil {
		t.Fatalf("RenamePlaylist() error = %v", err)
	}
	p, _ = s.GetPlaylist(ctx, "p1")
	if p.Name != "Renamed" {
		t.Errorf("Name after rename = %q", p.Name)
	}

	if err := s.DeletePlaylist(ctx, "p1"); err != nil {
		t.Fatalf("DeletePlaylist() error = %v", err)
	}
	if _, err := s.GetPlaylist(ctx, "p1"); !apperr.IsType(err, apperr.TypeNotFound) {
		t.Errorf("GetPlaylist() after delete error = %v, want not found", err)
	}
}

func TestRenameMissingPlaylist(t *testing.T) {
	s := newTestStore(t)
	if err := s.RenamePlaylist(context.Background(), "nope", "x"); !apperr.IsType(err, apperr.TypeNotFound) {
		t.Errorf("RenamePlaylist(missing) error = %v, want not found", err)
	}
}

func TestTrackPositionsAssignedSequentially(t *testing.T) {
	s := newTestStore(t)
	mustCreatePlaylist(t, s, "p1", "P")

	mustCreateTrack(t, s, "t1", "p1", "a")
	mustCreateTrack(t, s, "t2", "p1", "b")
	mustCreateTrack(t, s, "t3", "p1", "c")

	tracks, err := s.ListTracks(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListTracks() error = %v", err)
	}
	for i, tr := range tracks {
		if tr.Position != i {
			t.Errorf("tracks[%d].Position = %d, want %d", i, tr.Position, i)
		}
	}
}

func TestDeleteTrackCompactsPositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreatePlaylist(t, s, "p1", "P")
	mustCreateTrack(t, s, "t1", "p1", "a")
	mustCreateTrack(t, s, "t2", "p1", "b")
	mustCreateTrack(t, s, "t3", "p1", "c")

	if err := s.DeleteTrack(ctx, "t2"); err != nil {
		t.Fatalf("DeleteTrack() error = %v", err)
	}

	tracks, _ := s.ListTracks(ctx, "p1")
	if len(tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(tracks))
	}
	if tracks[0].ID != "t1" || tracks[0].Position != 0 {
		t.Errorf("tracks[0] = %+v, want t1 at 0", tracks[0])
	}
	if tracks[1].ID != "t3" || tracks[1].Position != 1 {
		t.Errorf("tracks[1] = %+v, want t3 at 1", tracks[1])
	}
}

func TestTrackCounts(t *testing.T) {
	s := newTestStore(t)
	mustCreatePlaylist(t, s, "p1", "P1")
	mustCreatePlaylist(t, s, "p2", "P2")
	mustCreateTrack(t, s, "t1", "p1", "a")
	mustCreateTrack(t, s, "t2", "p1", "b")

	counts, err := s.TrackCounts(context.Background())
	if err != nil {
		t.Fatalf("TrackCounts() error = %v", err)
	}
	if counts["p1"] != 2 || counts["p2"] != 0 {
		t.Errorf("counts = %v, want p1:2 p2:0", counts)
	}
}

func TestTagMappingUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreatePlaylist(t, s, "p1", "P1")
	mustCreatePlaylist(t, s, "p2", "P2")

	if _, exists, err := s.GetTagMapping(ctx, "tag-1"); err != nil || exists {
		t.Fatalf("GetTagMapping(fresh) = exists %v, err %v", exists, err)
	}

	if err := s.PutTagMapping(ctx, "tag-1", "p1"); err != nil {
		t.Fatalf("PutTagMapping() error = %v", err)
	}
	m, exists, _ := s.GetTagMapping(ctx, "tag-1")
	if !exists || m.PlaylistID != "p1" {
		t.Fatalf("mapping = %+v (exists %v)", m, exists)
	}

	// Overwrite rebinds the same tag.
	if err := s.PutTagMapping(ctx, "tag-1", "p2"); err != nil {
		t.Fatalf("PutTagMapping(rebind) error = %v", err)
	}
	m, _, _ = s.GetTagMapping(ctx, "tag-1")
	if m.PlaylistID != "p2" {
		t.Errorf("PlaylistID after rebind = %q, want p2", m.PlaylistID)
	}

	if err := s.DeleteTagMapping(ctx, "tag-1"); err != nil {
		t.Fatalf("DeleteTagMapping() error = %v", err)
	}
	if _, exists, _ := s.GetTagMapping(ctx, "tag-1"); exists {
		t.Error("mapping should be gone after delete")
	}
}

func TestSeqWatermarkNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.SeqWatermark(ctx)
	if err != nil {
		t.Fatalf("SeqWatermark() error = %v", err)
	}
	if v != 0 {
		t.Fatalf("initial watermark = %d, want 0", v)
	}

	if err := s.SaveSeqWatermark(ctx, 500); err != nil {
		t.Fatalf("SaveSeqWatermark(500) error = %v", err)
	}
	if err := s.SaveSeqWatermark(ctx, 200); err != nil {
		t.Fatalf("SaveSeqWatermark(200) error = %v", err)
	}

	v, _ = s.SeqWatermark(ctx)
	if v != 500 {
		t.Errorf("watermark = %d, want 500 (no regression)", v)
	}
}
