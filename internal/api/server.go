package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/artifact"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/ratelimit"
	"landing-page-generator/internal/store"
	"landing-page-generator/internal/telemetry"
	"landing-page-generator/internal/templates"
)

// JobStore is the slice of *store.Store the handlers use.
type JobStore interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.ContentJob, error)
	GetJobForUser(ctx context.Context, id, userID string) (models.ContentJob, error)
	ListJobs(ctx context.Context, userID string, limit, offset int) ([]models.ContentJob, error)
	CountJobs(ctx context.Context, userID string) (int, error)
	MarkFailed(ctx context.Context, id, message string) (bool, error)
	UpdateArtifact(ctx context.Context, id, location, name string) error
	DeleteJob(ctx context.Context, id, userID string) error
	SetCredentials(ctx context.Context, creds models.Credentials) error
	AppendAudit(ctx context.Context, jobID, event, detail string) error
	AuditTrail(ctx context.Context, jobID string) ([]models.AuditLog, error)
	Ping(ctx context.Context) error
}

// EventQueue is the slice of *queue.RedisQueue the handlers use.
type EventQueue interface {
	Enqueue(ctx context.Context, ev models.Event, priority string, runAt time.Time) error
	Cancel(ctx context.Context, eventID string) error
	DLQPeek(ctx context.Context, count int64) ([]string, error)
}

// Limiter gates submissions per user.
type Limiter interface {
	Allow(ctx context.Context, userID string) (ratelimit.Decision, error)
}

// Catalog lists the templates users can pick.
type Catalog interface {
	Get(id string) (templates.Config, bool)
	All() []templates.Config
}

// Server wires HTTP handlers for the producer API.
type Server struct {
	store     JobStore
	queue     EventQueue
	limiter   Limiter
	catalog   Catalog
	artifacts artifact.Store
	logger    zerolog.Logger

	operatorToken string
}

// New constructs the API server. A nil limiter disables rate limiting.
func New(st JobStore, q EventQueue, limiter Limiter, catalog Catalog, artifacts artifact.Store, logger zerolog.Logger) *Server {
	return &Server{
		store:     st,
		queue:     q,
		limiter:   limiter,
		catalog:   catalog,
		artifacts: artifacts,
		logger:    logger,
	}
}

// WithOperatorToken enables the operator routes under /api/admin. They stay closed
// while the token is empty.
func (s *Server) WithOperatorToken(token string) *Server {
	s.operatorToken = token
	return s
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", s.handleReady)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/templates", s.handleTemplates)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/generate", s.handleGenerate)
			r.Get("/contents", s.handleList)
			r.Get("/contents/{id}", s.handleGetContent)
			r.Delete("/contents/{id}", s.handleDelete)
			r.Put("/contents/{id}/html", s.handleReplaceHTML)
			r.Get("/contents/{id}/audit", s.handleAudit)
			r.Get("/download/{id}", s.handleDownload)
			r.Put("/settings/credentials", s.handleSetCredentials)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireOperator)
			r.Get("/dlq", s.handleDLQ)
		})
	})
	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userKey struct{}

// requireUser reads the caller identity set by the upstream auth proxy.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Code: "UNAUTHORIZED", Message: "missing X-User-ID header"}})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

// requireOperator admits requests carrying "Authorization: Bearer <operator token>".
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.operatorToken == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.operatorToken)) != 1 {
			writeJSON(w, http.StatusForbidden, errorBody{Error: errorDetail{Code: "FORBIDDEN", Message: "operator token required"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromRequest(r *http.Request) string {
	userID, _ := r.Context().Value(userKey{}).(string)
	return userID
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// writeError maps AppErrors to their status; anything else is a masked 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperrors.As(err); ok {
		writeJSON(w, appErr.HTTPStatus(), errorBody{Error: errorDetail{Code: appErr.Code, Message: appErr.Message}})
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "INTERNAL", Message: "internal error"}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
