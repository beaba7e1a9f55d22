package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tonebox/backend/internal/apperr"
	"github.com/tonebox/backend/internal/logging"
	"github.com/tonebox/backend/internal/models"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a plain validation-class error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:   string(apperr.TypeValidation),
		Message: message,
	})
}

// writeAppError maps a classified error to its HTTP status and wire tag.
// Server-class failures are logged with a stack trace.
func writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	status := statusFor(ae.Type)

	writeJSON(w, status, models.ErrorResponse{
		Error:     string(ae.Type),
		Message:   ae.Message,
		Retryable: ae.Retryable,
	})

	if status >= http.StatusInternalServerError {
		logging.LogErrorWithStatus(ctx, status, "error response", logging.WrapError(err, ae.Message))
	}
}

func statusFor(t apperr.Type) int {
	switch t {
	case apperr.TypeValidation:
		return http.StatusBadRequest
	case apperr.TypeNotFound:
		return http.StatusNotFound
	case apperr.TypeConflict:
		return http.StatusConflict
	case apperr.TypeInvalidState:
		return http.StatusUnprocessableEntity
	case apperr.TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
