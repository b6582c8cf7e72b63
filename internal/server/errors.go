package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/session"
)

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error kind to its HTTP status. The timeout check runs
// before the generation check because ErrGenerationTimeout wraps ErrGeneration.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion), errors.Is(err, rag.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotIndexed):
		return http.StatusConflict
	case errors.Is(err, rag.ErrIngest), errors.Is(err, rag.ErrIndexBuild):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrEmbedding), errors.Is(err, rag.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// outcomeFor classifies an operation result for the operation metrics.
func outcomeFor(err error) string {
	if err == nil {
		return "ok"
	}
	switch status := statusFor(err); {
	case status == http.StatusGatewayTimeout:
		return "timeout"
	case status < http.StatusInternalServerError:
		return "client_error"
	default:
		return "error"
	}
}

// writeError logs err and writes it as a JSON error with the mapped status.
// Unclassified failures are reported to the client without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}

	log := logging.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log.Log(r.Context(), level, "request failed",
		slog.Int("status", status),
		slog.Any("error", err),
	)

	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeJSONError writes a JSON-formatted error response with the given status code.
func writeJSONError(w http.ResponseWriter, r *http.Request, msg string, status int) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
