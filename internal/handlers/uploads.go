package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tonebox/backend/internal/models"
	"github.com/tonebox/backend/internal/ops"
	"github.com/tonebox/backend/internal/upload"
)

// maxChunkBodyBytes bounds a single chunk request body. Chunk size itself is
// validated by the upload manager; this only protects the reader.
const maxChunkBodyBytes = 16 << 20

// UploadHandler drives the chunked upload lifecycle over HTTP.
type UploadHandler struct {
	uploads *upload.Manager
	tracker *ops.Tracker
}

// NewUploadHandler creates an UploadHandler with the required dependencies.
func NewUploadHandler(uploads *upload.Manager, tracker *ops.Tracker) *UploadHandler {
	return &UploadHandler{uploads: uploads, tracker: tracker}
}

// Init opens a new upload session.
func (h *UploadHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req models.InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "upload_init", http.StatusCreated, func() (any, error) {
		snap, err := h.uploads.Init(r.Context(), req.PlaylistID, req.Filename, req.TotalSize, req.ChunkSize)
		if err != nil {
			return nil, err
		}
		return statusResponse(snap), nil
	})
}

// Chunk receives one raw chunk body. Chunks carry no clientOpId: chunk writes
// are naturally idempotent, a resend of the same index is a safe no-op.
func (h *UploadHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "chunk index must be a non-negative integer")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read chunk body")
		return
	}
	if int64(len(data)) > maxChunkBodyBytes {
		writeError(w, http.StatusBadRequest, "chunk body too large")
		return
	}

	progress, err := h.uploads.ReceiveChunk(id, index, data)
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ChunkResponse{UploadID: id, Index: index, Progress: progress})
}

// Finalize assembles the chunks and registers the track. Checksum
// verification is optional; an empty checksum skips it.
func (h *UploadHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.FinalizeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "upload_finalize", http.StatusOK, func() (any, error) {
		track, err := h.uploads.Finalize(r.Context(), id, req.Checksum)
		if err != nil {
			return nil, err
		}
		return trackResponse(track), nil
	})
}

// Cancel aborts an in-flight upload and discards its staging data.
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runTracked(w, r, h.tracker, req.ClientOpID, "upload_cancel", http.StatusOK, func() (any, error) {
		if err := h.uploads.Cancel(id); err != nil {
			return nil, err
		}
		return map[string]string{"id": id}, nil
	})
}

// Status reports a session's bitmap-derived progress.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.uploads.Get(id)
	if err != nil {
		writeAppError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(snap))
}

func statusResponse(s upload.Snapshot) models.UploadStatusResponse {
	return models.UploadStatusResponse{
		UploadID:       s.ID,
		PlaylistID:     s.PlaylistID,
		Filename:       s.Filename,
		TotalSize:      s.TotalSize,
		ChunkSize:      s.ChunkSize,
		ExpectedChunks: s.ExpectedChunks,
		ReceivedChunks: s.ReceivedChunks,
		BytesReceived:  s.BytesReceived,
		Status:         string(s.Status),
		Progress:       s.Progress,
	}
}
