package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/models"
)

// dbExecutor is the part of pgxpool.Pool the store needs.
type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
	db   dbExecutor
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, db: pool}, nil
}

func newWithExecutor(db dbExecutor) *Store {
	return &Store{db: db}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// CreateJobParams collects inputs required to insert a job.
type CreateJobParams struct {
	UserID       string
	SiteName     string
	CanonicalURL string
	AlternateURL string
	TemplateID   string
}

// CreateJob inserts a pending job and assigns its id and event correlation id.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.ContentJob, error) {
	now := time.Now().UTC()
	job := models.ContentJob{
		ID:           uuid.New().String(),
		UserID:       p.UserID,
		SiteName:     p.SiteName,
		CanonicalURL: p.CanonicalURL,
		AlternateURL: p.AlternateURL,
		TemplateID:   p.TemplateID,
		EventID:      uuid.New().String(),
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO content_jobs (id, user_id, site_name, canonical_url, alternate_url, template_id, event_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, job.ID, job.UserID, job.SiteName, job.CanonicalURL, job.AlternateURL, job.TemplateID, job.EventID, string(job.Status), now)
	if err != nil {
		return models.ContentJob{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, user_id, site_name, derived_keywords, canonical_url, alternate_url, template_id, event_id,
	status, error, artifact_location, artifact_name, generated_content, created_at, updated_at, completed_at`

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.ContentJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM content_jobs WHERE id = $1`, id)
	return scanJobRow(row)
}

// GetJobForUser fetches a job only when userID owns it.
func (s *Store) GetJobForUser(ctx context.Context, id, userID string) (models.ContentJob, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM content_jobs WHERE id = $1 AND user_id = $2`, id, userID)
	return scanJobRow(row)
}

func scanJobRow(row pgx.Row) (models.ContentJob, error) {
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ContentJob{}, apperrors.NotFound("job not found")
		}
		return models.ContentJob{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// ListJobs returns a user's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, userID string, limit, offset int) ([]models.ContentJob, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM content_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []models.ContentJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs counts a user's jobs.
func (s *Store) CountJobs(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_jobs WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// SetDerivedKeywords records the keyword set computed for a job.
func (s *Store) SetDerivedKeywords(ctx context.Context, id string, keywords []string) error {
	raw, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE content_jobs SET derived_keywords = $2, updated_at = NOW() WHERE id = $1
	`, id, raw)
	if err != nil {
		return fmt.Errorf("set derived keywords: %w", err)
	}
	return nil
}

// MarkCompleted attaches the artifact and document in one statement. It reports
// false when the job was no longer pending.
func (s *Store) MarkCompleted(ctx context.Context, id, location, name string, content *models.GeneratedContent) (bool, error) {
	if content == nil || location == "" {
		return false, errors.New("completed job needs artifact location and content")
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return false, fmt.Errorf("marshal content: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE content_jobs
		SET status = $2, artifact_location = $3, artifact_name = $4, generated_content = $5,
		    error = NULL, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, string(models.StatusCompleted), location, name, raw, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records the error of a pending job. It reports false when the job
// already reached a terminal state.
func (s *Store) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	if strings.TrimSpace(message) == "" {
		message = "generation failed"
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE content_jobs
		SET status = $2, error = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, string(models.StatusFailed), message, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateArtifact points a completed job at a replacement artifact.
func (s *Store) UpdateArtifact(ctx context.Context, id, location, name string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE content_jobs SET artifact_location = $2, artifact_name = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, location, name, string(models.StatusCompleted))
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("completed job not found")
	}
	return nil
}

// DeleteJob removes a job owned by userID. Cached step outputs go with it.
func (s *Store) DeleteJob(ctx context.Context, id, userID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM content_jobs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job not found")
	}
	return nil
}

// GetCredentials returns the user's model settings. ok is false when none are saved.
func (s *Store) GetCredentials(ctx context.Context, userID string) (models.Credentials, bool, error) {
	creds := models.Credentials{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT api_key, model FROM user_credentials WHERE user_id = $1
	`, userID).Scan(&creds.APIKey, &creds.Model)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Credentials{}, false, nil
	}
	if err != nil {
		return models.Credentials{}, false, fmt.Errorf("query credentials: %w", err)
	}
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	if creds.APIKey == "" {
		return models.Credentials{}, false, nil
	}
	if creds.Model == "" {
		creds.Model = models.DefaultModel
	}
	return creds, true, nil
}

// SetCredentials upserts the user's model settings.
func (s *Store) SetCredentials(ctx context.Context, creds models.Credentials) error {
	key := strings.TrimSpace(creds.APIKey)
	if key == "" {
		return apperrors.Validation("api key is required")
	}
	model := creds.Model
	if model == "" {
		model = models.DefaultModel
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_credentials (user_id, api_key, model, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET api_key = EXCLUDED.api_key, model = EXCLUDED.model, updated_at = NOW()
	`, creds.UserID, key, model)
	if err != nil {
		return fmt.Errorf("upsert credentials: %w", err)
	}
	return nil
}

// GetStep returns the cached output of a finished pipeline step.
func (s *Store) GetStep(ctx context.Context, jobID, step string) ([]byte, bool, error) {
	var out []byte
	err := s.db.QueryRow(ctx, `
		SELECT output FROM pipeline_steps WHERE job_id = $1 AND step = $2
	`, jobID, step).Scan(&out)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query step %s: %w", step, err)
	}
	return out, true, nil
}

// SaveStep caches a step output. A re-run of the same step overwrites it.
func (s *Store) SaveStep(ctx context.Context, jobID, step string, output []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pipeline_steps (job_id, step, output, recorded_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (job_id, step) DO UPDATE SET output = EXCLUDED.output, recorded_at = NOW()
	`, jobID, step, output)
	if err != nil {
		return fmt.Errorf("save step %s: %w", step, err)
	}
	return nil
}

// AppendAudit adds an audit row.
func (s *Store) AppendAudit(ctx context.Context, jobID, event, detail string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_logs (job_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, jobID, event, detail)
	return err
}

// AuditTrail lists a job's audit rows in order.
func (s *Store) AuditTrail(ctx context.Context, jobID string) ([]models.AuditLog, error) {
	rows, err := s.db.Query(ctx, `
		SELECT job_id, event, detail, ts FROM audit_logs WHERE job_id = $1 ORDER BY ts, id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()
	var out []models.AuditLog
	for rows.Next() {
		var a models.AuditLog
		if err := rows.Scan(&a.JobID, &a.Event, &a.Detail, &a.Recorded); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob maps one content_jobs row onto the canonical job shape.
func scanJob(row rowScanner) (models.ContentJob, error) {
	var (
		job         models.ContentJob
		status      string
		keywords    []byte
		errText     pgtype.Text
		location    pgtype.Text
		name        pgtype.Text
		content     []byte
		completedAt pgtype.Timestamptz
	)
	if err := row.Scan(&job.ID, &job.UserID, &job.SiteName, &keywords, &job.CanonicalURL, &job.AlternateURL,
		&job.TemplateID, &job.EventID, &status, &errText, &location, &name, &content,
		&job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
		return models.ContentJob{}, err
	}
	job.Status = models.JobStatus(status)
	job.Error = textPtr(errText)
	job.ArtifactLocation = textPtr(location)
	job.ArtifactName = textPtr(name)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if len(keywords) > 0 {
		if err := json.Unmarshal(keywords, &job.DerivedKeywords); err != nil {
			return models.ContentJob{}, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	if len(content) > 0 {
		var doc models.GeneratedContent
		if err := json.Unmarshal(content, &doc); err != nil {
			return models.ContentJob{}, fmt.Errorf("unmarshal content: %w", err)
		}
		job.GeneratedContent = &doc
	}
	return job, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
