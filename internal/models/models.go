// Package models defines the JSON request and response shapes of the HTTP API.
package models

import "time"

// ErrorResponse is the uniform error body. Error carries the stable failure
// class tag; Message is human-readable.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Playlists

type CreatePlaylistRequest struct {
	Name       string `json:"name"`
	ClientOpID string `json:"clientOpId"`
}

type RenamePlaylistRequest struct {
	Name       string `json:"name"`
	ClientOpID string `json:"clientOpId"`
}

type DeleteRequest struct {
	ClientOpID string `json:"clientOpId"`
}

type PlaylistResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TrackCount int       `json:"trackCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

type TrackResponse struct {
	ID         string    `json:"id"`
	PlaylistID string    `json:"playlistId"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"sizeBytes"`
	DurationMS int64     `json:"durationMs"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Uploads

type InitUploadRequest struct {
	PlaylistID string `json:"playlistId"`
	Filename   string `json:"filename"`
	TotalSize  int64  `json:"totalSize"`
	ChunkSize  int64  `json:"chunkSize"`
	ClientOpID string `json:"clientOpId"`
}

type UploadStatusResponse struct {
	UploadID       string  `json:"uploadId"`
	PlaylistID     string  `json:"playlistId"`
	Filename       string  `json:"filename"`
	TotalSize      int64   `json:"totalSize"`
	ChunkSize      int64   `json:"chunkSize"`
	ExpectedChunks int     `json:"expectedChunks"`
	ReceivedChunks int     `json:"receivedChunks"`
	BytesReceived  int64   `json:"bytesReceived"`
	Status         string  `json:"status"`
	Progress       float64 `json:"progress"`
}

type ChunkResponse struct {
	UploadID string  `json:"uploadId"`
	Index    int     `json:"index"`
	Progress float64 `json:"progress"`
}

type FinalizeUploadRequest struct {
	Checksum   string `json:"checksum"`
	ClientOpID string `json:"clientOpId"`
}

// NFC

type StartAssociationRequest struct {
	PlaylistID string `json:"playlistId"`
	TimeoutSec int    `json:"timeoutSec,omitempty"`
	ClientOpID string `json:"clientOpId"`
}

type OverrideAssociationRequest struct {
	TagID      string `json:"tagId"`
	PlaylistID string `json:"playlistId"`
	ClientOpID string `json:"clientOpId"`
}

type StopAssociationRequest struct {
	AssocID    string `json:"assocId"`
	ClientOpID string `json:"clientOpId"`
}

type SimulateTagRequest struct {
	TagID string `json:"tagId"`
}

type AssociationResponse struct {
	AssocID            string    `json:"assocId"`
	PlaylistID         string    `json:"playlistId"`
	State              string    `json:"state"`
	TagID              string    `json:"tagId,omitempty"`
	ConflictPlaylistID string    `json:"conflictPlaylistId,omitempty"`
	StartedAt          time.Time `json:"startedAt"`
	TimeoutAt          time.Time `json:"timeoutAt"`
}

// Player

type PlayerCommandRequest struct {
	PlaylistID string `json:"playlistId,omitempty"`
	TrackID    string `json:"trackId,omitempty"`
	PositionMS int64  `json:"positionMs,omitempty"`
	Volume     *int   `json:"volume,omitempty"`
	ClientOpID string `json:"clientOpId,omitempty"`
}

type PlayerStateResponse struct {
	IsPlaying  bool   `json:"isPlaying"`
	PlaylistID string `json:"playlistId,omitempty"`
	TrackID    string `json:"trackId,omitempty"`
	TrackIndex int    `json:"trackIndex"`
	PositionMS int64  `json:"positionMs"`
	DurationMS int64  `json:"durationMs"`
	Volume     int    `json:"volume"`
	Muted      bool   `json:"muted"`
	ServerSeq  uint64 `json:"serverSeq"`
}

// Config

type ConfigResponse struct {
	DeviceName   string `json:"deviceName"`
	MaxFileSize  int64  `json:"maxFileSize"`
	Version      string `json:"version"`
	LibraryWatch bool   `json:"libraryWatch"`
}
