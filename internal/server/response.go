package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

const internalErrorMessage = "internal server error"

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch alerr.GetErrorCode(err) {
	case alerr.ErrSourceNotFound, alerr.ErrCatalogUnavailable:
		return http.StatusNotFound
	case alerr.ErrInvalidTile, alerr.ErrTileJSON:
		return http.StatusBadRequest
	case alerr.ErrUnauthorized:
		return http.StatusUnauthorized
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail logs err and writes its response. Client errors carry their message;
// server errors are logged in full and answered generically.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	reqID := middleware.GetReqID(r.Context())

	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", reqID, "error", err)
		writeError(w, status, internalErrorMessage)
	case status == http.StatusServiceUnavailable:
		s.logger.Debug("request abandoned", "path", r.URL.Path, "request_id", reqID, "error", err)
		writeError(w, status, "request cancelled")
	default:
		s.logger.Debug("request rejected", "path", r.URL.Path, "request_id", reqID, "status", status, "error", err)
		writeError(w, status, clientMessage(err))
	}
}

func clientMessage(err error) string {
	var e *alerr.Error
	if errors.As(err, &e) {
		return e.GetMessage()
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// accessLog writes one record per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
