package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/models"
	"github.com/tonebox/backend/internal/ops"
	"github.com/tonebox/backend/internal/realtime"
	"github.com/tonebox/backend/internal/storage"
)

const maxPlaylistNameLen = 120

// PlaylistHandler manages playlist and track CRUD.
type PlaylistHandler struct {
	store   *storage.Store
	hub     *realtime.Hub
	tracker *ops.Tracker
}

// NewPlaylistHandler creates a PlaylistHandler with the required dependencies.
func NewPlaylistHandler(store *storage.Store, hub *realtime.Hub, tracker *ops.Tracker) *PlaylistHandler {
	return &PlaylistHandler{store: store, hub: hub, tracker: tracker}
}

// List returns all playlists with their track counts.
func (h *PlaylistHandler) List(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.store.ListPlaylists(r.Context())
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	counts, err := h.store.TrackCounts(r.Context())
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	out := make([]models.PlaylistResponse, 0, len(playlists))
	for _, p := range playlists {
		out = append(out, models.PlaylistResponse{
			ID:         p.ID,
			Name:       p.Name,
			TrackCount: counts[p.ID],
			CreatedAt:  p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Create makes a new empty playlist and broadcasts playlist_created.
func (h *PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxPlaylistNameLen {
		writeError(w, http.StatusBadRequest, "name is required and must be at most 120 characters")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "playlist_create", http.StatusCreated, func() (any, error) {
		p := storage.Playlist{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
		if err := h.store.CreatePlaylist(r.Context(), p); err != nil {
			return nil, err
		}
		h.hub.Publish(events.TypePlaylistCreated, events.RoomGlobal, "", events.PlaylistPayload{
			PlaylistID: p.ID,
			Name:       p.Name,
		})
		return models.PlaylistResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}, nil
	})
}

// Get returns one playlist.
func (h *PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.store.GetPlaylist(r.Context(), id)
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	counts, err := h.store.TrackCounts(r.Context())
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PlaylistResponse{
		ID:         p.ID,
		Name:       p.Name,
		TrackCount: counts[p.ID],
		CreatedAt:  p.CreatedAt,
	})
}

// Rename updates a playlist's name and broadcasts playlist_renamed to the
// playlist room and the global room.
func (h *PlaylistHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.RenamePlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxPlaylistNameLen {
		writeError(w, http.StatusBadRequest, "name is required and must be at most 120 characters")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "playlist_rename", http.StatusOK, func() (any, error) {
		if err := h.store.RenamePlaylist(r.Context(), id, name); err != nil {
			return nil, err
		}
		payload := events.PlaylistPayload{PlaylistID: id, Name: name}
		h.hub.Publish(events.TypePlaylistRenamed, events.PlaylistRoom(id), id, payload)
		h.hub.Publish(events.TypePlaylistRenamed, events.RoomGlobal, "", payload)
		return models.PlaylistResponse{ID: id, Name: name}, nil
	})
}

// Delete removes a playlist and everything under it, then broadcasts
// playlist_deleted.
func (h *PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "playlist_delete", http.StatusOK, func() (any, error) {
		if err := h.store.DeletePlaylist(r.Context(), id); err != nil {
			return nil, err
		}
		payload := events.PlaylistPayload{PlaylistID: id}
		h.hub.Publish(events.TypePlaylistDeleted, events.PlaylistRoom(id), id, payload)
		h.hub.Publish(events.TypePlaylistDeleted, events.RoomGlobal, "", payload)
		return map[string]string{"id": id}, nil
	})
}

// ListTracks returns a playlist's tracks in play order.
func (h *PlaylistHandler) ListTracks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetPlaylist(r.Context(), id); err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	tracks, err := h.store.ListTracks(r.Context(), id)
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	out := make([]models.TrackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, trackResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteTrack removes one track and broadcasts track_removed.
func (h *PlaylistHandler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	trackID := chi.URLParam(r, "trackId")
	var req models.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "track_delete", http.StatusOK, func() (any, error) {
		tr, err := h.store.GetTrack(r.Context(), trackID)
		if err != nil {
			return nil, err
		}
		if err := h.store.DeleteTrack(r.Context(), trackID); err != nil {
			return nil, err
		}
		payload := events.TrackPayload{PlaylistID: playlistID, TrackID: trackID, Title: tr.Title}
		h.hub.Publish(events.TypeTrackRemoved, events.PlaylistRoom(playlistID), playlistID, payload)
		h.hub.Publish(events.TypeTrackRemoved, events.RoomGlobal, "", payload)
		return map[string]string{"id": trackID}, nil
	})
}

func trackResponse(t storage.Track) models.TrackResponse {
	return models.TrackResponse{
		ID:         t.ID,
		PlaylistID: t.PlaylistID,
		Title:      t.Title,
		Filename:   t.Filename,
		SizeBytes:  t.SizeBytes,
		DurationMS: t.DurationMS,
		Position:   t.Position,
		CreatedAt:  t.CreatedAt,
	}
}
