// Package server exposes the device control surface and the aggregator
// API over HTTP, with WebSocket push for live state.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/roach88/scoreclock/internal/protocol"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("http: encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, resp protocol.ErrorResponse, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		slog.Error("http: request failed", "status", status, "message", resp.Error, "error", err)
	}
	respondJSON(w, status, resp)
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, err error) {
	respondError(w, http.StatusBadRequest, protocol.ErrorResponse{Error: err.Error(), Code: "BAD_REQUEST"}, nil)
}

// parseDuration accepts a Go duration ("45s") or a bare number of seconds.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("threshold must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid threshold %q", s)
	}
	return d, nil
}
