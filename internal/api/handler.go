// Package api serves predictions, team statistics and maintenance controls
// over HTTP, plus a Model Context Protocol endpoint for tool-using agents.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/predictor"
)

// PredictionService answers prediction and statistics queries.
type PredictionService interface {
	Predict(ctx context.Context, req predictor.Request) *models.Prediction
	TeamReport(ctx context.Context, team string) (*models.TeamReport, error)
	HeadToHead(ctx context.Context, home, away string) ([]models.HeadToHead, error)
	Hierarchy(ctx context.Context) (predictor.Hierarchy, error)
	Upcoming(count int) ([]models.Fixture, error)
}

// MaintenanceService exposes model health and background maintenance.
type MaintenanceService interface {
	LastReport() (*models.HealthReport, error)
	JobStatus() (*models.JobStatus, error)
	Start(ctx context.Context, force bool) (string, error)
}

type Config struct {
	Predictor   PredictionService
	Maintenance MaintenanceService
	Logger      *zap.Logger
	AdminToken  string
	CORSOrigins []string
	EnableMCP   bool
	Version     string
	// BaseContext outlives requests; background jobs started over HTTP use it.
	BaseContext context.Context
}

type Handler struct {
	predictor   PredictionService
	maintenance MaintenanceService
	logger      *zap.SugaredLogger
	validator   *validator.Validate
	adminToken  string
	corsOrigins []string
	enableMCP   bool
	version     string
	baseCtx     context.Context
	now         func() time.Time
}

func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handler{
		predictor:   cfg.Predictor,
		maintenance: cfg.Maintenance,
		logger:      logger.Sugar(),
		validator:   validator.New(),
		adminToken:  cfg.AdminToken,
		corsOrigins: cfg.CORSOrigins,
		enableMCP:   cfg.EnableMCP,
		version:     cfg.Version,
		baseCtx:     baseCtx,
		now:         time.Now,
	}
}

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token", "Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/predict", h.Predict)
		r.Get("/teams", h.Teams)
		r.Get("/teams/{team}", h.Team)
		r.Get("/h2h", h.HeadToHead)
		r.Get("/upcoming", h.Upcoming)
		r.Get("/status", h.Status)

		r.With(h.AdminAuthMiddleware).Post("/admin/retrain", h.Retrain)
	})

	if h.enableMCP {
		r.Handle("/mcp", h.MCPHandler())
	}
	return r
}

// AdminAuthMiddleware requires the configured admin token. With no token
// configured the admin routes are disabled.
func (h *Handler) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			h.errorResponse(w, http.StatusForbidden, "Admin API is disabled")
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			h.errorResponse(w, http.StatusUnauthorized, "Missing admin token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			h.logger.Warnw("rejected admin request", "remote", r.RemoteAddr, "request_id", middleware.GetReqID(r.Context()))
			h.errorResponse(w, http.StatusUnauthorized, "Invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorw("failed to encode response", "error", err)
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
