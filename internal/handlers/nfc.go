package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tonebox/backend/internal/models"
	"github.com/tonebox/backend/internal/nfc"
	"github.com/tonebox/backend/internal/ops"
)

// NFCHandler exposes the tag-association session over HTTP, plus a simulate
// endpoint standing in for the reader hardware during development.
type NFCHandler struct {
	nfc            *nfc.Manager
	tracker        *ops.Tracker
	defaultTimeout time.Duration
}

// NewNFCHandler creates an NFCHandler with the required dependencies.
func NewNFCHandler(manager *nfc.Manager, tracker *ops.Tracker, defaultTimeout time.Duration) *NFCHandler {
	return &NFCHandler{nfc: manager, tracker: tracker, defaultTimeout: defaultTimeout}
}

// Start begins an association session for a playlist.
func (h *NFCHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartAssociationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlistId is required")
		return
	}
	timeout := h.defaultTimeout
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "nfc_start", http.StatusCreated, func() (any, error) {
		sess, err := h.nfc.Start(req.PlaylistID, timeout)
		if err != nil {
			return nil, err
		}
		return associationResponse(sess), nil
	})
}

// Override confirms rewriting an existing mapping after a duplicate detection.
func (h *NFCHandler) Override(w http.ResponseWriter, r *http.Request) {
	var req models.OverrideAssociationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TagID == "" || req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "tagId and playlistId are required")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "nfc_override", http.StatusOK, func() (any, error) {
		if err := h.nfc.Override(r.Context(), req.TagID, req.PlaylistID); err != nil {
			return nil, err
		}
		return map[string]string{"tagId": req.TagID, "playlistId": req.PlaylistID}, nil
	})
}

// Stop cancels the active association session.
func (h *NFCHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req models.StopAssociationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AssocID == "" {
		writeError(w, http.StatusBadRequest, "assocId is required")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "nfc_stop", http.StatusOK, func() (any, error) {
		if err := h.nfc.Stop(req.AssocID); err != nil {
			return nil, err
		}
		return map[string]string{"assocId": req.AssocID}, nil
	})
}

// Status returns the active association session, or 404 when idle.
func (h *NFCHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, active := h.nfc.Active()
	if !active {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, associationResponse(sess))
}

// Simulate injects a tag scan as if the reader hardware had reported it.
// No clientOpId: the real reader cannot supply one either.
func (h *NFCHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req models.SimulateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tagID := strings.TrimSpace(req.TagID)
	if tagID == "" {
		writeError(w, http.StatusBadRequest, "tagId is required")
		return
	}

	if err := h.nfc.HandleTag(r.Context(), tagID); err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tagId": tagID})
}

func associationResponse(s nfc.Session) models.AssociationResponse {
	return models.AssociationResponse{
		AssocID:            s.AssocID,
		PlaylistID:         s.PlaylistID,
		State:              string(s.State),
		TagID:              s.DetectedTagID,
		ConflictPlaylistID: s.ConflictPlaylistID,
		StartedAt:          s.StartedAt,
		TimeoutAt:          s.TimeoutAt,
	}
}
