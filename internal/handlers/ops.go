package handlers

import (
	"net/http"

	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/ops"
)

// runTracked executes a mutation under idempotency tracking. A retried
// clientOpId returns the stored outcome without re-running the mutation; a
// retry that races the in-flight original gets a retryable conflict.
func runTracked(w http.ResponseWriter, r *http.Request, tracker *ops.Tracker, clientOpID, name string, status int, fn func() (any, error)) {
	if err := ops.ValidateClientOpID(clientOpID); err != nil {
		writeAppError(r.Context(), w, err)
		return
	}

	_, existing := tracker.Track(clientOpID, name)
	if existing {
		entry, _ := tracker.Outcome(clientOpID)
		if !entry.Resolved {
			writeAppError(r.Context(), w, apperr.TransientInfra(nil, "operation %q still in flight", clientOpID))
			return
		}
		if entry.Err != nil {
			writeAppError(r.Context(), w, entry.Err)
			return
		}
		writeJSON(w, http.StatusOK, entry.Result)
		return
	}

	result, err := fn()
	if err != nil {
		tracker.Reject(clientOpID, err)
		writeAppError(r.Context(), w, err)
		return
	}
	tracker.Resolve(clientOpID, result)
	writeJSON(w, status, result)
}
