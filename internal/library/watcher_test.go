package library

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tonebox/backend/internal/events"
)

type capturePublisher struct {
	mu        sync.Mutex
	published []string
}

func (c *capturePublisher) Publish(eventType, room, playlistID string, data any) *events.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, eventType)
	return &events.Envelope{EventType: eventType, Room: room, Data: data}
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func TestRelevantFilters(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"mp3 create", fsnotify.Event{Name: "/music/song.mp3", Op: fsnotify.Create}, true},
		{"flac remove", fsnotify.Event{Name: "/music/song.flac", Op: fsnotify.Remove}, true},
		{"uppercase ext", fsnotify.Event{Name: "/music/SONG.MP3", Op: fsnotify.Create}, true},
		{"hidden file", fsnotify.Event{Name: "/music/.song.mp3.part", Op: fsnotify.Create}, false},
		{"text file", fsnotify.Event{Name: "/music/notes.txt", Op: fsnotify.Create}, false},
		{"chmod only", fsnotify.Event{Name: "/music/song.mp3", Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevant(tt.event); got != tt.want {
				t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestWatcherBroadcastsOnNewFile(t *testing.T) {
	dir := t.TempDir()
	pub := &capturePublisher{}

	w, err := NewWatcher(dir, pub)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	if err := os.WriteFile(filepath.Join(dir, "new.mp3"), []byte("id3"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.After(10 * time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no library_changed broadcast after file creation")
		case <-time.After(100 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	pub := &capturePublisher{}

	w, err := NewWatcher(dir, pub)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// A burst of creates inside one debounce window must yield exactly one
	// broadcast, even when the timer is reset repeatedly mid-burst.
	names := []string{"a.mp3", "b.flac", "c.ogg", "d.wav", "e.m4a"}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("id3"), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
		time.Sleep(150 * time.Millisecond)
	}

	deadline := time.After(10 * time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no library_changed broadcast after burst")
		case <-time.After(100 * time.Millisecond):
		}
	}

	// Let a further full window elapse; no second broadcast may surface.
	time.Sleep(debounceWindow + 500*time.Millisecond)
	if got := pub.count(); got != 1 {
		t.Errorf("broadcasts after burst = %d, want 1", got)
	}

	cancel()
	<-done
}
