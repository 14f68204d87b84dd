// Package handler holds shared HTTP handler plumbing: the response
// envelope and small request parsing helpers.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/SueMuBai/nebula/internal/logger"
)

const maxBodySize = 1 << 20

// Envelope is the uniform response shape: success flag, optional
// human-readable message, and endpoint-specific fields merged in.
type Envelope map[string]any

// WriteJSON serializes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("write response: %v", err)
	}
}

// WriteOK writes a success envelope, merging extra fields if given.
func WriteOK(w http.ResponseWriter, extra map[string]any) {
	body := Envelope{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	WriteJSON(w, http.StatusOK, body)
}

// WriteReject writes a failure envelope with a message. Business
// rejections are 200 with success=false, matching the API contract.
func WriteReject(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, Envelope{"success": false, "message": message})
}

// ReadJSON decodes the request body into dst, writing a rejection and
// returning false on failure.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := io.LimitReader(r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		WriteReject(w, "invalid request body")
		return false
	}
	return true
}

// QueryInt64 parses an int64 query parameter with a default.
func QueryInt64(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// QueryInt parses an int query parameter with a default.
func QueryInt(r *http.Request, name string, def int) int {
	return int(QueryInt64(r, name, int64(def)))
}
