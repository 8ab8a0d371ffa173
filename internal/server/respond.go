package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

// maxBodyBytes bounds request bodies; task lists and PRDs are the largest.
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSuccess writes fields with "status": "success".
func writeSuccess(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": "success"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

// orEmpty keeps empty lists from encoding as null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

// writeAppError maps err's kind to a status code and tells the client
// whether retrying may succeed.
func writeAppError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.KindOf(err).HTTPStatus(), map[string]any{
		"status":    "error",
		"message":   apperr.Message(err),
		"retryable": apperr.IsRetryable(err),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindValidation, "server.decode", "request body is required")
		}
		return apperr.Wrap(apperr.KindValidation, "server.decode", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}
