// Package api serves the advisor's read and trigger endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/alerts"
	"github.com/eddiefleurent/options_advisor/internal/jobs"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

const maxListLimit = 500

// Store is the persistence the API reads and acknowledges through.
type Store interface {
	ListRecommendations(ctx context.Context, f storage.RecommendationFilter) ([]models.Recommendation, error)
	ListAlerts(ctx context.Context, f storage.AlertFilter) ([]models.Alert, error)
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID string) error
}

// Jobs triggers scan and delivery cycles on demand.
type Jobs interface {
	RunScan(ctx context.Context) (*jobs.ScanReport, error)
	RunDelivery(ctx context.Context) (alerts.DeliveryStats, error)
}

// Server is the operations API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     Store
	jobs      Jobs
	logger    logrus.FieldLogger
	port      int
	authToken string
}

// Config configures the API server.
type Config struct {
	Port      int
	AuthToken string
	// Timeout bounds each request, including triggered scans.
	Timeout time.Duration
}

// NewServer builds the router. A nil jobs disables the trigger endpoints.
func NewServer(cfg Config, store Store, j Jobs, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		jobs:      j,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes(cfg.Timeout)
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes(timeout time.Duration) {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(timeout))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/recommendations", s.handleListRecommendations)
		r.Get("/alerts", s.handleListAlerts)
		r.Get("/alerts/{id}", s.handleGetAlert)
		r.Post("/alerts/{id}/ack", s.handleAcknowledge)
		if s.jobs != nil {
			r.Post("/scan", s.handleScan)
			r.Post("/deliver", s.handleDeliver)
		}
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}, s.logger)
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	recs, err := s.store.ListRecommendations(r.Context(), storage.RecommendationFilter{
		AccountID:  q.Get("account_id"),
		PositionID: q.Get("position_id"),
		Limit:      limit,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list recommendations")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs, s.logger)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	includeAcked := false
	if v := q.Get("include_acknowledged"); v != "" {
		if includeAcked, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "include_acknowledged must be a boolean")
			return
		}
	}
	jobType := q.Get("type")
	if jobType == "" {
		jobType = models.JobTypeOptionsScan
	}

	list, err := s.store.ListAlerts(r.Context(), storage.AlertFilter{
		AccountID:           q.Get("account_id"),
		Type:                jobType,
		IncludeAcknowledged: includeAcked,
		Limit:               limit,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list alerts")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if list == nil {
		list = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, list, s.logger)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, err := s.store.GetAlert(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "get alert")
		return
	}
	writeJSON(w, http.StatusOK, alert, s.logger)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.AcknowledgeAlert(r.Context(), id); err != nil {
		s.storeError(w, err, "acknowledge alert")
		return
	}
	s.logger.WithField("alert_id", id).Info("Alert acknowledged")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "acknowledged"}, s.logger)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	report, err := s.jobs.RunScan(r.Context())
	if err != nil {
		s.jobError(w, err, "scan")
		return
	}
	writeJSON(w, http.StatusOK, report, s.logger)
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.RunDelivery(r.Context())
	if err != nil {
		s.jobError(w, err, "delivery")
		return
	}
	writeJSON(w, http.StatusOK, stats, s.logger)
}

func (s *Server) storeError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.WithError(err).Errorf("Failed to %s", op)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) jobError(w http.ResponseWriter, err error, job string) {
	if errors.Is(err, jobs.ErrBusy) {
		writeError(w, http.StatusConflict, job+" already running")
		return
	}
	s.logger.WithError(err).Errorf("Triggered %s failed", job)
	writeError(w, http.StatusInternalServerError, job+" failed")
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any, logger logrus.FieldLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
