package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/models"
	"github.com/tonebox/backend/internal/ops"
	"github.com/tonebox/backend/internal/player"
)

// PlayerHandler exposes playback commands. A clientOpId is accepted but
// optional: the coordinator's state machine makes every command naturally
// idempotent, so commands without one are simply not tracked.
type PlayerHandler struct {
	player  *player.Coordinator
	tracker *ops.Tracker
}

// NewPlayerHandler creates a PlayerHandler around the coordinator.
func NewPlayerHandler(c *player.Coordinator, tracker *ops.Tracker) *PlayerHandler {
	return &PlayerHandler{player: c, tracker: tracker}
}

// State returns the authoritative player snapshot.
func (h *PlayerHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse(h.player.State()))
}

// Command dispatches a named playback command. The command name comes from
// the URL so the frontend can wire buttons directly to endpoints.
func (h *PlayerHandler) Command(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PlayerCommandRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		exec := func() (any, error) {
			if err := h.dispatch(r, name, req); err != nil {
				return nil, err
			}
			return stateResponse(h.player.State()), nil
		}

		if req.ClientOpID != "" {
			runTracked(w, r, h.tracker, req.ClientOpID, "player_"+name, http.StatusOK, exec)
			return
		}

		result, err := exec()
		if err != nil {
			writeAppError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *PlayerHandler) dispatch(r *http.Request, name string, req models.PlayerCommandRequest) error {
	switch name {
	case "play":
		switch {
		case req.TrackID != "":
			if req.PlaylistID == "" {
				return apperr.Validation("playlistId is required with trackId")
			}
			return h.player.PlayTrack(r.Context(), req.PlaylistID, req.TrackID)
		case req.PlaylistID != "":
			return h.player.PlayPlaylist(r.Context(), req.PlaylistID)
		default:
			return h.player.Play()
		}
	case "pause":
		return h.player.Pause()
	case "toggle":
		return h.player.Toggle()
	case "stop":
		return h.player.Stop()
	case "next":
		return h.player.Next()
	case "previous":
		return h.player.Previous()
	case "seek":
		return h.player.Seek(req.PositionMS)
	case "volume":
		if req.Volume == nil {
			return apperr.Validation("volume is required")
		}
		return h.player.SetVolume(*req.Volume)
	default:
		return apperr.Validation("unknown player command %q", name)
	}
}

func stateResponse(s player.State) models.PlayerStateResponse {
	return models.PlayerStateResponse{
		IsPlaying:  s.IsPlaying,
		PlaylistID: s.PlaylistID,
		TrackID:    s.TrackID,
		TrackIndex: s.TrackIndex,
		PositionMS: s.PositionMS,
		DurationMS: s.DurationMS,
		Volume:     s.Volume,
		Muted:      s.Muted,
		ServerSeq:  s.ServerSeq,
	}
}
