// Package api serves the admin surface: trigger and cancel imports, inspect
// state, and expose metrics.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"listing_syncer/internal/domain"
	"listing_syncer/internal/service"
)

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger.With("component", "api"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	r.Get("/status", h.handleStatus)
	r.Get("/report", h.handleReport)
	r.Post("/imports", h.handleStart)
	r.Post("/imports/cancel", h.handleCancel)
	r.Post("/imports/nobulk", h.handleNoBulk)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// StartRequest is the body of POST /imports. Dates accept RFC 3339 or YYYY-MM-DD.
type StartRequest struct {
	Mode     domain.Mode `json:"mode"`
	Modified string      `json:"modified"`
	Before   string      `json:"before"`
	UUID     string      `json:"uuid"`
	PageSize int         `json:"page_size"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	modified, err := parseDate(req.Modified)
	if err != nil {
		http.Error(w, "invalid modified: "+err.Error(), http.StatusBadRequest)
		return
	}
	before, err := parseDate(req.Before)
	if err != nil {
		http.Error(w, "invalid before: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = h.engine.Start(r.Context(), req.Mode, service.StartOptions{
		Modified: modified,
		Before:   before,
		UUID:     req.UUID,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.fail(w, "start import", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "mode": string(req.Mode)})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.Context()); err != nil {
		h.fail(w, "cancel import", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) handleNoBulk(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.NoBulk(r.Context()); err != nil {
		h.fail(w, "clear bulk flags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		h.fail(w, "get status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Report(r.Context())
	if err != nil {
		h.fail(w, "build report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		http.Error(w, cfgErr.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error("request failed", "op", op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
