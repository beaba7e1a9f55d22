// Package player owns the authoritative playback state. All commands are
// serialized through the coordinator's lock; it is the only writer of player
// state and the single source of player mutations fed to the broadcaster.
package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/storage"
	"golang.org/x/time/rate"
)

// positionPublishRate throttles position telemetry broadcasts to one every
// 200ms regardless of how often the audio pipeline reports.
var positionPublishRate = rate.Every(200 * time.Millisecond)

// Output is the audio pipeline capability. Load returns the decoded duration
// when the pipeline knows it, or 0 to keep the repository's stored duration.
type Output interface {
	Load(path string) (durationMS int64, err error)
	Play() error
	Pause() error
	Stop() error
	Seek(positionMS int64) error
	SetVolume(percent int) error
}

// NullOutput is a no-op pipeline used when no audio hardware is attached.
type NullOutput struct{}

func (NullOutput) Load(string) (int64, error) { return 0, nil }
func (NullOutput) Play() error                { return nil }
func (NullOutput) Pause() error               { return nil }
func (NullOutput) Stop() error                { return nil }
func (NullOutput) Seek(int64) error           { return nil }
func (NullOutput) SetVolume(int) error        { return nil }

// Publisher fans a mutation out to subscribed sessions.
type Publisher interface {
	Publish(eventType, room, playlistID string, data any) *events.Envelope
}

// Store is the slice of the repository the coordinator needs.
type Store interface {
	ListTracks(ctx context.Context, playlistID string) ([]storage.Track, error)
}

// State is the authoritative player snapshot. External readers always receive
// a copy; every write goes through a coordinator command.
type State struct {
	IsPlaying  bool
	PlaylistID string
	TrackID    string
	TrackIndex int
	PositionMS int64
	DurationMS int64
	Volume     int
	Muted      bool
	ServerSeq  uint64
}

// Coordinator serializes playback commands against the player state.
type Coordinator struct {
	mu     sync.Mutex
	out    Output
	store  Store
	pub    Publisher
	state  State
	tracks []storage.Track

	posLimiter *rate.Limiter
}

// NewCoordinator creates a coordinator at volume 50 with nothing loaded.
func NewCoordinator(out Output, store Store, pub Publisher) *Coordinator {
	return &Coordinator{
		out:        out,
		store:      store,
		pub:        pub,
		state:      State{Volume: 50},
		posLimiter: rate.NewLimiter(positionPublishRate, 1),
	}
}

// State returns a snapshot of the current player state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PlayPlaylist loads a playlist and starts its first track.
func (c *Coordinator) PlayPlaylist(ctx context.Context, playlistID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks, err := c.store.ListTracks(ctx, playlistID)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return apperr.InvalidState("playlist %q has no tracks", playlistID)
	}
	c.state.PlaylistID = playlistID
	c.tracks = tracks
	if err := c.loadIndexLocked(0); err != nil {
		return err
	}
	return c.playLocked()
}

// PlayTrack loads a playlist positioned at a specific track and plays it.
func (c *Coordinator) PlayTrack(ctx context.Context, playlistID, trackID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks, err := c.store.ListTracks(ctx, playlistID)
	if err != nil {
		return err
	}
	for i, tr := range tracks {
		if tr.ID == trackID {
			c.state.PlaylistID = playlistID
			c.tracks = tracks
			if err := c.loadIndexLocked(i); err != nil {
				return err
			}
			return c.playLocked()
		}
	}
	return apperr.NotFound("track %q not in playlist %q", trackID, playlistID)
}

// Play resumes the loaded track.
func (c *Coordinator) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.TrackID == "" {
		return apperr.InvalidState("no track loaded")
	}
	return c.playLocked()
}

// Pause pauses playback, keeping the loaded track and position.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.TrackID == "" {
		return apperr.InvalidState("no track loaded")
	}
	if err := c.out.Pause(); err != nil {
		return apperr.TransientInfra(err, "pipeline pause failed")
	}
	c.state.IsPlaying = false
	c.publishStateLocked()
	return nil
}

// Toggle flips between play and pause.
func (c *Coordinator) Toggle() error {
	c.mu.Lock()
	playing := c.state.IsPlaying
	c.mu.Unlock()
	if playing {
		return c.Pause()
	}
	return c.Play()
}

// Stop halts playback and rewinds to the start of the loaded track.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.out.Stop(); err != nil {
		return apperr.TransientInfra(err, "pipeline stop failed")
	}
	c.state.IsPlaying = false
	c.state.PositionMS = 0
	c.publishStateLocked()
	return nil
}

// Next advances to the following track in the active playlist.
func (c *Coordinator) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canNextLocked() {
		return apperr.InvalidState("no next track")
	}
	if err := c.loadIndexLocked(c.state.TrackIndex + 1); err != nil {
		return err
	}
	if c.state.IsPlaying {
		return c.playLocked()
	}
	c.publishStateLocked()
	return nil
}

// Previous steps back to the preceding track in the active playlist.
func (c *Coordinator) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canPrevLocked() {
		return apperr.InvalidState("no previous track")
	}
	if err := c.loadIndexLocked(c.state.TrackIndex - 1); err != nil {
		return err
	}
	if c.state.IsPlaying {
		return c.playLocked()
	}
	c.publishStateLocked()
	return nil
}

// Seek moves the playhead. The position must fall within the loaded track.
func (c *Coordinator) Seek(positionMS int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.TrackID == "" {
		return apperr.InvalidState("no track loaded")
	}
	if positionMS < 0 || positionMS > c.state.DurationMS {
		return apperr.Validation("position %d out of range [0, %d]", positionMS, c.state.DurationMS)
	}
	if err := c.out.Seek(positionMS); err != nil {
		return apperr.TransientInfra(err, "pipeline seek failed")
	}
	c.state.PositionMS = positionMS
	c.publishStateLocked()
	return nil
}

// SetVolume sets the output volume in percent.
func (c *Coordinator) SetVolume(percent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if percent < 0 || percent > 100 {
		return apperr.Validation("volume %d out of range [0, 100]", percent)
	}
	if err := c.out.SetVolume(percent); err != nil {
		return apperr.TransientInfra(err, "pipeline volume failed")
	}
	c.state.Volume = percent
	c.state.Muted = percent == 0
	c.publishStateLocked()
	return nil
}

// HandlePosition is the audio pipeline's periodic position callback. State is
// always updated; broadcasts are throttled and carry no client op id since
// they are passive telemetry, not command responses.
func (c *Coordinator) HandlePosition(positionMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.TrackID == "" {
		return
	}
	c.state.PositionMS = positionMS
	if !c.posLimiter.Allow() {
		return
	}
	c.pub.Publish(events.TypePlayerPosition, events.RoomGlobal, "", events.PositionPayload{
		TrackID:    c.state.TrackID,
		PositionMS: positionMS,
	})
}

// HandleTrackEnd auto-advances to the next track, or stops at the playlist
// end.
func (c *Coordinator) HandleTrackEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.canNextLocked() {
		if err := c.loadIndexLocked(c.state.TrackIndex + 1); err != nil {
			slog.Error("player: failed to advance after track end", slog.Any("error", err))
			c.state.IsPlaying = false
			c.publishStateLocked()
			return
		}
		if err := c.playLocked(); err != nil {
			slog.Error("player: failed to play after track end", slog.Any("error", err))
		}
		return
	}
	c.state.IsPlaying = false
	c.state.PositionMS = 0
	c.publishStateLocked()
}

func (c *Coordinator) canNextLocked() bool {
	return len(c.tracks) > 0 && c.state.TrackIndex < len(c.tracks)-1
}

func (c *Coordinator) canPrevLocked() bool {
	return len(c.tracks) > 0 && c.state.TrackIndex > 0
}

// loadIndexLocked points the pipeline at the track and resets the playhead.
func (c *Coordinator) loadIndexLocked(index int) error {
	tr := c.tracks[index]
	duration, err := c.out.Load(tr.FilePath)
	if err != nil {
		return apperr.TransientInfra(err, "pipeline failed to load %q", tr.Filename)
	}
	if duration == 0 {
		duration = tr.DurationMS
	}
	c.state.TrackIndex = index
	c.state.TrackID = tr.ID
	c.state.PositionMS = 0
	c.state.DurationMS = duration
	return nil
}

func (c *Coordinator) playLocked() error {
	if err := c.out.Play(); err != nil {
		return apperr.TransientInfra(err, "pipeline play failed")
	}
	c.state.IsPlaying = true
	c.publishStateLocked()
	return nil
}

// publishStateLocked broadcasts the full state snapshot and records the
// sequence number it was stamped with.
func (c *Coordinator) publishStateLocked() {
	env := c.pub.Publish(events.TypePlayerState, events.RoomGlobal, "", events.PlayerPayload{
		IsPlaying:  c.state.IsPlaying,
		PlaylistID: c.state.PlaylistID,
		TrackID:    c.state.TrackID,
		TrackIndex: c.state.TrackIndex,
		PositionMS: c.state.PositionMS,
		DurationMS: c.state.DurationMS,
		Volume:     c.state.Volume,
		Muted:      c.state.Muted,
	})
	c.state.ServerSeq = env.ServerSeq
}
