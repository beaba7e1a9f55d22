// Package events defines the broadcast envelope and the typed payloads that
// travel inside it. The envelope shape is the wire contract shared with the
// frontend; payloads are opaque to the transport and only typed at the point
// where they are constructed.
package events

import "fmt"

// Known event types.
const (
	TypePlaylistCreated = "playlist_created"
	TypePlaylistRenamed = "playlist_renamed"
	TypePlaylistDeleted = "playlist_deleted"
	TypeTrackAdded      = "track_added"
	TypeTrackRemoved    = "track_removed"
	TypeLibraryChanged  = "library_changed"
	TypePlayerState     = "player_state"
	TypePlayerPosition  = "player_position"
	TypeNFCStatus       = "nfc_status"
	TypeUploadProgress  = "upload_progress"
)

// Room names. RoomGlobal carries library-wide and player events; per-playlist
// rooms carry mutations scoped to that playlist; RoomNFC carries association
// session status.
const (
	RoomGlobal = "playlists"
	RoomNFC    = "nfc"
)

// PlaylistRoom returns the room name for a single playlist.
func PlaylistRoom(playlistID string) string {
	return fmt.Sprintf("playlist:%s", playlistID)
}

// Envelope is the stamped, ordered unit of broadcast data. It is immutable
// after construction; redelivery during catch-up reuses the identical value.
type Envelope struct {
	EventType   string  `json:"event_type"`
	ServerSeq   uint64  `json:"server_seq"`
	PlaylistSeq *uint64 `json:"playlist_seq"`
	Room        string  `json:"room"`
	Data        any     `json:"data"`
	Timestamp   uint64  `json:"timestamp"`
	EventID     string  `json:"event_id"`
}

// SubscribeAck acknowledges a (re)subscription and tells the client what
// sequence the room is at right now.
type SubscribeAck struct {
	Room        string  `json:"room"`
	Success     bool    `json:"success"`
	ServerSeq   uint64  `json:"server_seq"`
	PlaylistSeq *uint64 `json:"playlist_seq,omitempty"`
}

// PlaylistPayload describes playlist create/rename/delete events.
type PlaylistPayload struct {
	PlaylistID string `json:"playlistId"`
	Name       string `json:"name,omitempty"`
}

// TrackPayload describes track add/remove events.
type TrackPayload struct {
	PlaylistID string `json:"playlistId"`
	TrackID    string `json:"trackId"`
	Title      string `json:"title,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// PlayerPayload is the full player-state snapshot broadcast after a command.
type PlayerPayload struct {
	IsPlaying  bool   `json:"isPlaying"`
	PlaylistID string `json:"playlistId,omitempty"`
	TrackID    string `json:"trackId,omitempty"`
	TrackIndex int    `json:"trackIndex"`
	PositionMS int64  `json:"positionMs"`
	DurationMS int64  `json:"durationMs"`
	Volume     int    `json:"volume"`
	Muted      bool   `json:"muted"`
}

// PositionPayload is the lightweight position-only telemetry event.
type PositionPayload struct {
	TrackID    string `json:"trackId"`
	PositionMS int64  `json:"positionMs"`
}

// NFCPayload describes association session status transitions.
type NFCPayload struct {
	AssocID            string `json:"assocId"`
	State              string `json:"state"`
	PlaylistID         string `json:"playlistId"`
	TagID              string `json:"tagId,omitempty"`
	ConflictPlaylistID string `json:"conflictPlaylistId,omitempty"`
}

// UploadPayload reports chunked upload progress to subscribed clients.
type UploadPayload struct {
	UploadID   string  `json:"uploadId"`
	PlaylistID string  `json:"playlistId"`
	Filename   string  `json:"filename"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
}

// LibraryPayload reports out-of-band changes to the track directory.
type LibraryPayload struct {
	Path         string `json:"path,omitempty"`
	ChangedFiles int    `json:"changedFiles,omitempty"`
}
