package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/johnkord/sendie/internal/registry"
)

// Sentinel errors for the httpapi package.
var (
	// ErrForbidden indicates the caller failed the required policy check.
	ErrForbidden = errors.New("caller does not satisfy the required policy")

	// ErrInvalidUserID indicates a target user ID does not match the
	// upstream provider's identifier shape.
	ErrInvalidUserID = errors.New("user id must be 17 to 19 decimal digits")

	// ErrRateLimited indicates the request exceeded its policy's quota.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidSessionID indicates a session ID failed shape validation
	// (22-char base64url). Treated as not-found, not bad-request, so a
	// probe cannot distinguish a malformed ID from an unknown one.
	ErrInvalidSessionID = errors.New("malformed session id")
)

// errorBody is the structured error payload for every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

// writeError maps err to its HTTP status code and writes the structured
// error body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, registry.ErrSessionNotFound), errors.Is(err, ErrInvalidSessionID):
		status = http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrInvalidUserID), errors.Is(err, registry.ErrInvalidMaxPeers):
		status = http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeJSON marshals v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":"failed to encode response"}`)
	}
}
