package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON renders every response body the note and sync handlers produce.
// The status line is already committed when encoding starts, so encode
// failures can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// errResponse is the uniform error body; handlers map apperr sentinels to
// a status and wrap the message here.
type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
