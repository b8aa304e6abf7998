package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"dualauth-server/src/apperr"
	"dualauth-server/src/middleware"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err onto its HTTP status and a public body. Internal and
// upstream causes are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "error", err}
	if userID, ok := middleware.UserID(r.Context()); ok {
		attrs = append(attrs, "user_id", userID)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", attrs...)
	} else {
		slog.Debug("Request rejected", attrs...)
	}

	body := map[string]any{"error": apperr.PublicMessage(err)}
	if details := apperr.PublicDetails(err); details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func currentUser(r *http.Request) (int64, error) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, apperr.Auth("missing session")
	}
	return userID, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body")
	}
	return nil
}

func queryParam(r *http.Request, name string) string {
	return r.URL.Query().Get(name)
}
