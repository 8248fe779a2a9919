package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"overlaysync/internal/domain"
)

const maxJSONBody = 8 << 20

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrSessionDisposed):
		writeError(w, http.StatusGone, "session_disposed", err.Error())
	case errors.Is(err, domain.ErrUnsupportedPage):
		writeError(w, http.StatusUnprocessableEntity, "unsupported_page", err.Error())
	case errors.Is(err, domain.ErrCaptureNotAllowed):
		writeError(w, http.StatusForbidden, "capture_not_allowed", err.Error())
	case errors.Is(err, domain.ErrNoVideoFrame):
		writeError(w, http.StatusConflict, "no_video_frame", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a size-limited JSON body into dest.
func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
