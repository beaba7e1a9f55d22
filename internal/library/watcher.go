// Package library watches the on-disk track directory and broadcasts a
// library_changed event when files appear, disappear, or get renamed outside
// the upload flow (e.g. a USB sync or a manual copy over the network share).
package library

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tonebox/backend/internal/events"
)

// debounceWindow coalesces bursts of filesystem events (a directory copy
// produces hundreds) into a single broadcast.
const debounceWindow = 2 * time.Second

// Publisher fans a mutation out to subscribed sessions.
type Publisher interface {
	Publish(eventType, room, playlistID string, data any) *events.Envelope
}

// Watcher monitors a directory tree for changes to audio files.
type Watcher struct {
	dir     string
	pub     Publisher
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over dir. Call Run to start it.
func NewWatcher(dir string, pub Publisher) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{dir: dir, pub: pub, watcher: fsw}, nil
}

// Run processes filesystem events until ctx is cancelled. Events are
// debounced so a burst of writes produces one broadcast.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := 0

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			pending++
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				// Drain a fired-but-unread tick before Reset so a stale
				// expiry cannot cut the window short mid-burst.
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			slog.Info("library: change detected", slog.Int("events", pending), slog.String("dir", w.dir))
			w.pub.Publish(events.TypeLibraryChanged, events.RoomGlobal, "", events.LibraryPayload{
				ChangedFiles: pending,
			})
			pending = 0
			timer = nil
			timerC = nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("library: watcher error", slog.Any("error", err))
		}
	}
}

// relevant filters out noise: only create, remove, and rename of audio files
// matter. Chmod and writes to temp files are ignored.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".flac", ".ogg", ".wav", ".m4a":
		return true
	}
	return false
}
