package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone; nothing left to do but log.
		logger.Error("error encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, httpCode int, errorCode, message string) {
	writeJSON(w, logger, httpCode, errorBody{
		ErrorCode: errorCode,
		Message:   message,
		Timestamp: nowISO(),
	})
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
