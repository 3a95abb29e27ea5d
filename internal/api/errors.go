package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-unifi/internal/bridges/unifi"
	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
)

// Error is the body of every error response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeConflict       = "conflict"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeTimeout        = "timeout"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// errorResponses maps the bridge and store sentinels onto responses.
// An empty message means the error text is shown as is.
var errorResponses = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{unifi.ErrCycleInProgress, http.StatusConflict, ErrCodeConflict, "a poll cycle is already running"},
	{unifi.ErrBridgeStopped, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge is stopped"},
	{objectstore.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "not found"},
	{objectstore.ErrInvalidID, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout, "timed out"},
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // The client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes an Error tagged with the request's ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestID(r.Context()),
	})
}

// fail answers a request whose operation on subject (e.g. "state
// default.x" or "poll") returned err. Known sentinels get their own
// status; anything else is logged and reported as a 500. Nothing is
// written once the client has gone away.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, subject string, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.logger.Debug("client went away", "subject", subject, "request_id", requestID(r.Context()))
		return
	}

	for _, e := range errorResponses {
		if !errors.Is(err, e.target) {
			continue
		}
		msg := err.Error()
		if e.message != "" {
			msg = subject + ": " + e.message
		}
		writeError(w, r, e.status, e.code, msg)
		return
	}

	s.logger.Error("request failed", "subject", subject, "error", err, "request_id", requestID(r.Context()))
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, subject+": internal error")
}
