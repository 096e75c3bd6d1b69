package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tgrimes/keygate/token"
)

func writeResult(w http.ResponseWriter, status int, message string, data any) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		raw = b
	}
	writeJSON(w, status, Result{
		OK:      status < http.StatusBadRequest,
		Status:  status,
		Message: message,
		Data:    raw,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Result{OK: false, Status: status, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// mapValidationError translates a token validation failure into an HTTP
// status. Every rejection is a 401: the envelope's message distinguishes
// them for the client, the logs for the operator.
func mapValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrStaleToken):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, token.ErrMalformed),
		errors.Is(err, token.ErrIntegrity),
		errors.Is(err, token.ErrCorrupt),
		errors.Is(err, token.ErrStructure),
		errors.Is(err, token.ErrNoSession),
		errors.Is(err, token.ErrReplay),
		errors.Is(err, token.ErrHeaderMismatch),
		errors.Is(err, token.ErrRefreshMismatch):
		writeError(w, http.StatusUnauthorized, "invalid session")
	case errors.Is(err, token.ErrInsecureTransport):
		writeError(w, http.StatusForbidden, "secure channel required")
	default:
		writeError(w, http.StatusInternalServerError, "session validation failed")
	}
}

const maxAuthBodySize = 4 << 10

// decodeJSON reads and decodes a JSON request body, writing the error
// response itself on failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}
