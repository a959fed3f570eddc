package server

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wmsyw/aiWriter-sub006/internal/auth"
	"github.com/wmsyw/aiWriter-sub006/internal/jobs"
	"github.com/wmsyw/aiWriter-sub006/internal/queue"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

// ErrorBody is the JSON error envelope returned by every endpoint.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// writeError maps domain errors to HTTP status codes and a stable error
// code. Unknown errors become an opaque 500 so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var ve *jobs.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Code:    "VALIDATION_FAILED",
			Message: "payload failed validation",
			Fields:  ve.Fields,
		}})
		return
	}

	switch {
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	case errors.Is(err, jobs.ErrForbidden):
		writeErrorCode(w, http.StatusForbidden, "FORBIDDEN", "access denied")
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		writeErrorCode(w, http.StatusConflict, "ALREADY_TERMINAL", "job already finished")
	case errors.Is(err, jobs.ErrUnknownJobType):
		writeErrorCode(w, http.StatusBadRequest, "UNKNOWN_JOB_TYPE", "unknown job type")
	case errors.Is(err, store.ErrEmailTaken):
		writeErrorCode(w, http.StatusConflict, "EMAIL_TAKEN", "email already registered")
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrTemplateNotFound),
		errors.Is(err, store.ErrArticleNotFound),
		errors.Is(err, store.ErrHookNotFound):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, queue.ErrUnavailable):
		// Transient backend failure. The write did not happen; clients may retry.
		writeErrorCode(w, http.StatusInternalServerError, "BACKEND_UNAVAILABLE", "service temporarily unavailable, retry later")
	default:
		log.Error().Err(err).Msg("Unhandled error")
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
