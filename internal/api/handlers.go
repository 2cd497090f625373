package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/artifact"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/store"
	"landing-page-generator/internal/telemetry"
)

const maxHTMLBytes = 5 << 20

type generateRequest struct {
	SiteName     string `json:"siteName"`
	CanonicalURL string `json:"canonicalUrl"`
	AlternateURL string `json:"alternateUrl"`
	TemplateID   string `json:"templateId"`
}

type generateResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

func (req *generateRequest) normalize() {
	req.SiteName = strings.TrimSpace(req.SiteName)
	req.CanonicalURL = strings.TrimSpace(req.CanonicalURL)
	req.AlternateURL = strings.TrimSpace(req.AlternateURL)
	req.TemplateID = strings.TrimSpace(req.TemplateID)
}

func (s *Server) validateGenerate(req generateRequest) error {
	switch {
	case req.SiteName == "":
		return apperrors.Validation("siteName is required")
	case req.TemplateID == "":
		return apperrors.Validation("templateId is required")
	}
	if err := validateURL("canonicalUrl", req.CanonicalURL); err != nil {
		return err
	}
	if err := validateURL("alternateUrl", req.AlternateURL); err != nil {
		return err
	}
	if _, ok := s.catalog.Get(req.TemplateID); !ok {
		return apperrors.TemplateNotFound(req.TemplateID)
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return apperrors.Validation(field + " is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.Validation(field + " must be an absolute http(s) URL")
	}
	return nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.Validation("invalid json"))
		return
	}
	req.normalize()
	if err := s.validateGenerate(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	userID := userFromRequest(r)
	if s.limiter != nil {
		decision, err := s.limiter.Allow(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !decision.Allowed {
			telemetry.RateLimitRejects.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{Code: "RATE_LIMITED", Message: "too many submissions"}})
			return
		}
	}

	job, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		UserID:       userID,
		SiteName:     req.SiteName,
		CanonicalURL: req.CanonicalURL,
		AlternateURL: req.AlternateURL,
		TemplateID:   req.TemplateID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ev := models.Event{ID: job.EventID, Name: models.EventGenerate, Payload: job.Request()}
	if err := s.queue.Enqueue(r.Context(), ev, "", time.Now()); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		_, _ = s.store.MarkFailed(r.Context(), job.ID, "could not schedule generation")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "ENQUEUE_FAILED", Message: "could not schedule generation"}})
		return
	}
	_ = s.store.AppendAudit(r.Context(), job.ID, "enqueued", fmt.Sprintf("user=%s template=%s", userID, job.TemplateID))
	telemetry.SubmissionCounter.Inc()

	writeJSON(w, http.StatusAccepted, generateResponse{JobID: job.ID, Status: job.Status})
}

type contentResponse struct {
	ID               string                   `json:"id"`
	Status           models.JobStatus         `json:"status"`
	SiteName         string                   `json:"siteName"`
	TemplateID       string                   `json:"templateId"`
	CanonicalURL     string                   `json:"canonicalUrl"`
	AlternateURL     string                   `json:"alternateUrl"`
	DerivedKeywords  []string                 `json:"derivedKeywords,omitempty"`
	GeneratedContent *models.GeneratedContent `json:"generatedContent,omitempty"`
	RenderedArtifact *string                  `json:"renderedArtifact,omitempty"`
	Error            *string                  `json:"error,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
	CompletedAt      *time.Time               `json:"completedAt,omitempty"`
}

func summarize(job models.ContentJob) contentResponse {
	return contentResponse{
		ID:              job.ID,
		Status:          job.Status,
		SiteName:        job.SiteName,
		TemplateID:      job.TemplateID,
		CanonicalURL:    job.CanonicalURL,
		AlternateURL:    job.AlternateURL,
		DerivedKeywords: job.DerivedKeywords,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	}
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJobForUser(r.Context(), chi.URLParam(r, "id"), userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := summarize(job)
	resp.GeneratedContent = job.GeneratedContent
	if job.Status == models.StatusCompleted && job.ArtifactLocation != nil {
		html, err := s.artifacts.Fetch(r.Context(), *job.ArtifactLocation)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.RenderedArtifact = &html
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJobForUser(r.Context(), id, userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.Status != models.StatusCompleted || job.ArtifactLocation == nil {
		s.writeError(w, r, apperrors.NotFound("landing page is not ready"))
		return
	}
	html, err := s.artifacts.Fetch(r.Context(), *job.ArtifactLocation)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="landing-page-%s.html"`, job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

type listResponse struct {
	Items []contentResponse `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 1, math.MaxInt32)
	limit := queryInt(r, "limit", 50, 1, 100)
	userID := userFromRequest(r)

	jobs, err := s.store.ListJobs(r.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.store.CountJobs(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]contentResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, summarize(job))
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Page: page, Limit: limit, Total: total})
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := userFromRequest(r)
	job, err := s.store.GetJobForUser(r.Context(), id, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.Status == models.StatusPending {
		if err := s.queue.Cancel(r.Context(), job.EventID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("could not cancel queued event")
		}
	}
	if err := s.store.DeleteJob(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.ArtifactLocation != nil {
		if err := s.artifacts.Delete(r.Context(), *job.ArtifactLocation); err != nil && !apperrors.HasCode(err, apperrors.CodeNotFound) {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("artifact left behind after delete")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type replaceHTMLRequest struct {
	HTMLContent string `json:"htmlContent"`
}

func (s *Server) handleReplaceHTML(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req replaceHTMLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHTMLBytes)).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.Validation("invalid json"))
		return
	}
	if strings.TrimSpace(req.HTMLContent) == "" {
		s.writeError(w, r, apperrors.Validation("htmlContent is required"))
		return
	}
	job, err := s.store.GetJobForUser(r.Context(), id, userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job.Status != models.StatusCompleted || job.ArtifactLocation == nil {
		s.writeError(w, r, apperrors.NotFound("landing page is not ready"))
		return
	}
	name := artifact.Name(job.SiteName, job.ID)
	if job.ArtifactName != nil && *job.ArtifactName != "" {
		name = *job.ArtifactName
	}
	location, err := s.artifacts.Replace(r.Context(), *job.ArtifactLocation, req.HTMLContent, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateArtifact(r.Context(), job.ID, location, name); err != nil {
		s.writeError(w, r, err)
		return
	}
	_ = s.store.AppendAudit(r.Context(), job.ID, "artifact_replaced", location)
	writeJSON(w, http.StatusOK, map[string]string{"renderedArtifact": location})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJobForUser(r.Context(), chi.URLParam(r, "id"), userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trail, err := s.store.AuditTrail(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": trail})
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.catalog.All()})
}

type credentialsRequest struct {
	APIKey string `json:"apiKey"`
	Model  string `json:"model"`
}

func (s *Server) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.Validation("invalid json"))
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = models.DefaultModel
	}
	if !slices.Contains(models.SupportedModels, model) {
		s.writeError(w, r, apperrors.Validation(fmt.Sprintf("unsupported model %q", model)))
		return
	}
	creds := models.Credentials{UserID: userFromRequest(r), APIKey: strings.TrimSpace(req.APIKey), Model: model}
	if err := s.store.SetCredentials(r.Context(), creds); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "model": model})
}

// handleDLQ returns the ids of dead-lettered events.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.DLQPeek(r.Context(), 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
