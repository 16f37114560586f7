package web

// errors.go provides unified error response handling for the API.
//
// Every handler error goes through respondError, which logs the technical
// error with the request ID for correlation and returns a JSON envelope
// with a stable machine-readable code and a client-safe message.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vendaops/salesync/internal/ingest"
	"github.com/vendaops/salesync/internal/store"
)

var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse is the JSON envelope for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Missing lists unmapped mandatory columns on mapping errors, so the
	// caller can resubmit with an explicit mapping.
	Missing []string `json:"missing,omitempty"`
}

// respondError logs err and writes its JSON envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	resp := mapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", resp.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// mapError converts an internal error to its client-facing envelope.
// Internal detail (SQL text, file paths) never reaches the client.
func mapError(err error) ErrorResponse {
	var incomplete *ingest.MappingIncompleteError
	switch {
	case errors.As(err, &incomplete):
		return ErrorResponse{
			Error:   "could not detect all mandatory columns; supply an explicit mapping",
			Code:    "mapping_incomplete",
			Missing: incomplete.Missing,
		}
	case errors.Is(err, store.ErrNotFound):
		return ErrorResponse{Error: "not found", Code: "not_found"}
	case errors.Is(err, errRateLimited):
		return ErrorResponse{Error: "rate limit exceeded, retry later", Code: "rate_limited"}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "http: request body too large"):
		return ErrorResponse{Error: "file exceeds the maximum upload size", Code: "file_too_large"}
	case strings.Contains(msg, "context deadline exceeded"):
		return ErrorResponse{Error: "operation timed out", Code: "timeout"}
	}
	return ErrorResponse{Error: sanitize(msg), Code: "internal_error"}
}

// sanitize strips newlines and caps length before a raw message is echoed.
func sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// writeJSON encodes v and writes it with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
