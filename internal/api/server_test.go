package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/artifact"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/ratelimit"
	"landing-page-generator/internal/store"
	"landing-page-generator/internal/templates"
)

type fakeStore struct {
	mu     sync.Mutex
	jobs   map[string]models.ContentJob
	creds  map[string]models.Credentials
	audits []string
	seq    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]models.ContentJob{}, creds: map[string]models.Credentials{}}
}

func (f *fakeStore) CreateJob(_ context.Context, p store.CreateJobParams) (models.ContentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job := models.ContentJob{
		ID: "job-" + string(rune('0'+f.seq)), EventID: "evt-" + string(rune('0'+f.seq)),
		UserID: p.UserID, SiteName: p.SiteName, CanonicalURL: p.CanonicalURL, AlternateURL: p.AlternateURL,
		TemplateID: p.TemplateID, Status: models.StatusPending, CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) GetJobForUser(_ context.Context, id, userID string) (models.ContentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.UserID != userID {
		return models.ContentJob{}, apperrors.NotFound("job not found")
	}
	return job, nil
}

func (f *fakeStore) ListJobs(_ context.Context, userID string, limit, offset int) ([]models.ContentJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ContentJob
	for _, j := range f.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountJobs(_ context.Context, userID string) (int, error) {
	jobs, _ := f.ListJobs(context.Background(), userID, 1<<30, 0)
	return len(jobs), nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Status = models.StatusFailed
	job.Error = &message
	f.jobs[id] = job
	return true, nil
}

func (f *fakeStore) UpdateArtifact(_ context.Context, id, location, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.ArtifactLocation = &location
	job.ArtifactName = &name
	f.jobs[id] = job
	return nil
}

func (f *fakeStore) DeleteJob(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeStore) SetCredentials(_ context.Context, creds models.Credentials) error {
	if creds.APIKey == "" {
		return apperrors.Validation("apiKey is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[creds.UserID] = creds
	return nil
}

func (f *fakeStore) AppendAudit(_ context.Context, jobID, event, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, event)
	return nil
}

func (f *fakeStore) AuditTrail(_ context.Context, jobID string) ([]models.AuditLog, error) {
	return []models.AuditLog{{JobID: jobID, Event: "enqueued"}}, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeQueue struct {
	events    []models.Event
	cancelled []string
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, ev models.Event, _ string, _ time.Time) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, id string) error {
	q.cancelled = append(q.cancelled, id)
	return nil
}

func (q *fakeQueue) DLQPeek(context.Context, int64) ([]string, error) { return []string{"evt-x"}, nil }

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
}

type harness struct {
	store     *fakeStore
	queue     *fakeQueue
	artifacts *artifact.LocalStore
	handler   http.Handler
}

func newHarness(t *testing.T, limiter Limiter) *harness {
	t.Helper()
	local, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	h := &harness{store: newFakeStore(), queue: &fakeQueue{}, artifacts: local}
	h.handler = New(h.store, h.queue, limiter, templates.Default(), local, zerolog.Nop()).Router()
	return h
}

func (h *harness) do(method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func validSubmission() generateRequest {
	return generateRequest{
		SiteName:     "stake",
		CanonicalURL: "https://example.com",
		AlternateURL: "https://alt.example.com",
		TemplateID:   "template-2",
	}
}

func TestGenerateAcceptsAndEnqueues(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodPost, "/api/generate", "u1", validSubmission())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var resp generateResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.JobID == "" || resp.Status != models.StatusPending {
		t.Fatalf("response = %+v", resp)
	}
	if len(h.queue.events) != 1 {
		t.Fatalf("events = %v", h.queue.events)
	}
	ev := h.queue.events[0]
	if ev.Name != models.EventGenerate || ev.Payload.JobID != resp.JobID || ev.ID != ev.Payload.EventID {
		t.Fatalf("event = %+v", ev)
	}
}

func TestGenerateValidation(t *testing.T) {
	h := newHarness(t, nil)
	cases := map[string]func(*generateRequest){
		"missing site": func(r *generateRequest) { r.SiteName = "  " },
		"relative url": func(r *generateRequest) { r.CanonicalURL = "example.com" },
		"ftp url":      func(r *generateRequest) { r.AlternateURL = "ftp://example.com" },
		"unknown tpl":  func(r *generateRequest) { r.TemplateID = "template-9" },
		"missing tpl":  func(r *generateRequest) { r.TemplateID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validSubmission()
			mutate(&req)
			rec := h.do(http.MethodPost, "/api/generate", "u1", req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
			}
		})
	}
	if len(h.queue.events) != 0 {
		t.Fatal("invalid submissions must not be enqueued")
	}
}

func TestGenerateRequiresUser(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do(http.MethodPost, "/api/generate", "", validSubmission()); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	h := newHarness(t, denyAll{})
	rec := h.do(http.MethodPost, "/api/generate", "u1", validSubmission())
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("status = %d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if len(h.store.jobs) != 0 {
		t.Fatal("rejected submission must not create a job")
	}
}

func TestGenerateEnqueueFailureMarksJobFailed(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.err = errors.New("redis down")
	rec := h.do(http.MethodPost, "/api/generate", "u1", validSubmission())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, job := range h.store.jobs {
		if job.Status != models.StatusFailed || job.Error == nil {
			t.Fatalf("job = %+v", job)
		}
	}
}

func (h *harness) completedJob(t *testing.T) models.ContentJob {
	t.Helper()
	loc, err := h.artifacts.Upload(context.Background(), "<html>stake</html>", "stake_job-1.html")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	name := "stake_job-1.html"
	job := models.ContentJob{
		ID: "job-1", UserID: "u1", SiteName: "stake", TemplateID: "template-2", EventID: "evt-1",
		Status: models.StatusCompleted, ArtifactLocation: &loc, ArtifactName: &name,
		GeneratedContent: &models.GeneratedContent{Meta: models.Meta{MetaTitle: "Stake"}},
	}
	h.store.jobs[job.ID] = job
	return job
}

func TestGetContentInlinesArtifact(t *testing.T) {
	h := newHarness(t, nil)
	h.completedJob(t)

	rec := h.do(http.MethodGet, "/api/contents/job-1", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp contentResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.RenderedArtifact == nil || *resp.RenderedArtifact != "<html>stake</html>" {
		t.Fatalf("artifact = %v", resp.RenderedArtifact)
	}
	if resp.GeneratedContent == nil || resp.GeneratedContent.Meta.MetaTitle != "Stake" {
		t.Fatalf("content = %+v", resp.GeneratedContent)
	}

	if rec := h.do(http.MethodGet, "/api/contents/job-1", "u2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("other users must not see the job, status = %d", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	h := newHarness(t, nil)
	h.completedJob(t)

	rec := h.do(http.MethodGet, "/api/download/job-1", "u1", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "<html>stake</html>" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="landing-page-job-1.html"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	h.store.jobs["job-2"] = models.ContentJob{ID: "job-2", UserID: "u1", Status: models.StatusPending}
	if rec := h.do(http.MethodGet, "/api/download/job-2", "u1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pending download status = %d", rec.Code)
	}
}

func TestReplaceHTML(t *testing.T) {
	h := newHarness(t, nil)
	job := h.completedJob(t)

	rec := h.do(http.MethodPut, "/api/contents/job-1/html", "u1", replaceHTMLRequest{HTMLContent: "<html>edited</html>"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	updated := h.store.jobs[job.ID]
	html, err := h.artifacts.Fetch(context.Background(), *updated.ArtifactLocation)
	if err != nil || html != "<html>edited</html>" {
		t.Fatalf("artifact = %q %v", html, err)
	}

	if rec := h.do(http.MethodPut, "/api/contents/job-1/html", "u1", replaceHTMLRequest{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty html status = %d", rec.Code)
	}
}

func TestDeleteRemovesArtifactAndCancelsPending(t *testing.T) {
	h := newHarness(t, nil)
	job := h.completedJob(t)

	if rec := h.do(http.MethodDelete, "/api/contents/job-1", "u1", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := h.artifacts.Fetch(context.Background(), *job.ArtifactLocation); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("artifact should be gone, got %v", err)
	}

	h.store.jobs["job-3"] = models.ContentJob{ID: "job-3", UserID: "u1", EventID: "evt-3", Status: models.StatusPending}
	if rec := h.do(http.MethodDelete, "/api/contents/job-3", "u1", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.queue.cancelled) != 1 || h.queue.cancelled[0] != "evt-3" {
		t.Fatalf("cancelled = %v", h.queue.cancelled)
	}
}

func TestListPagination(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 3; i++ {
		h.do(http.MethodPost, "/api/generate", "u1", validSubmission())
	}
	rec := h.do(http.MethodGet, "/api/contents?page=2&limit=2", "u1", nil)
	var resp listResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Page != 2 || resp.Limit != 2 || resp.Total != 3 || len(resp.Items) != 1 {
		t.Fatalf("list = %+v", resp)
	}

	rec = h.do(http.MethodGet, "/api/contents?page=abc&limit=0", "u1", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Page != 1 || resp.Limit != 1 {
		t.Fatalf("defaults/clamping = %+v", resp)
	}
}

func TestTemplatesAndCredentials(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodGet, "/api/templates", "", nil)
	var list struct {
		Templates []templates.Config `json:"templates"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Templates) != 5 {
		t.Fatalf("templates = %d", len(list.Templates))
	}

	rec = h.do(http.MethodPut, "/api/settings/credentials", "u1", credentialsRequest{APIKey: "sk-1"})
	if rec.Code != http.StatusOK || h.store.creds["u1"].Model != models.DefaultModel {
		t.Fatalf("status = %d creds = %+v", rec.Code, h.store.creds["u1"])
	}
	rec = h.do(http.MethodPut, "/api/settings/credentials", "u1", credentialsRequest{APIKey: "sk-1", Model: "gpt-99"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported model status = %d", rec.Code)
	}
}

func TestAuditTrailIsScopedToOwner(t *testing.T) {
	h := newHarness(t, nil)
	job, _ := h.store.CreateJob(context.Background(), store.CreateJobParams{UserID: "u1", SiteName: "stake", TemplateID: "template-1"})

	rec := h.do(http.MethodGet, "/api/contents/"+job.ID+"/audit", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []models.AuditLog `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Event != "enqueued" {
		t.Fatalf("unexpected trail %+v", body.Items)
	}

	if rec := h.do(http.MethodGet, "/api/contents/"+job.ID+"/audit", "u2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign user status = %d", rec.Code)
	}
}

func TestDLQRequiresOperatorToken(t *testing.T) {
	local, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	open := New(newFakeStore(), &fakeQueue{}, nil, templates.Default(), local, zerolog.Nop()).Router()
	guarded := New(newFakeStore(), &fakeQueue{}, nil, templates.Default(), local, zerolog.Nop()).WithOperatorToken("s3cret").Router()

	tests := []struct {
		name    string
		handler http.Handler
		auth    string
		want    int
	}{
		{"no token configured", open, "Bearer ", http.StatusForbidden},
		{"plain user", guarded, "", http.StatusForbidden},
		{"wrong token", guarded, "Bearer nope", http.StatusForbidden},
		{"operator", guarded, "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/dlq", nil)
			req.Header.Set("X-User-ID", "u1")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d want %d body=%s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && !strings.Contains(rec.Body.String(), "evt-x") {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}

	h := newHarness(t, nil)
	if rec := h.do(http.MethodGet, "/api/dlq", "u1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("user-scoped dlq route should be gone, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := h.do(http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}
