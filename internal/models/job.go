package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in Postgres.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventGenerate is the queue event name that triggers the generation pipeline.
const EventGenerate = "content/generate"

// GenerationRequest identifies one pipeline invocation. It travels as the queue event payload.
type GenerationRequest struct {
	JobID        string `json:"job_id"`
	UserID       string `json:"user_id"`
	SiteName     string `json:"site_name"`
	CanonicalURL string `json:"canonical_url"`
	AlternateURL string `json:"alternate_url"`
	TemplateID   string `json:"template_id"`
	EventID      string `json:"event_id"`
}

// ContentJob is the persisted record of a generation request.
type ContentJob struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	SiteName         string            `json:"site_name"`
	DerivedKeywords  []string          `json:"derived_keywords,omitempty"`
	CanonicalURL     string            `json:"canonical_url"`
	AlternateURL     string            `json:"alternate_url"`
	TemplateID       string            `json:"template_id"`
	EventID          string            `json:"event_id"`
	Status           JobStatus         `json:"status"`
	Error            *string           `json:"error"`
	ArtifactLocation *string           `json:"rendered_artifact"`
	ArtifactName     *string           `json:"artifact_name,omitempty"`
	GeneratedContent *GeneratedContent `json:"generated_content"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// Request rebuilds the immutable request the job was created from.
func (j ContentJob) Request() GenerationRequest {
	return GenerationRequest{
		JobID:        j.ID,
		UserID:       j.UserID,
		SiteName:     j.SiteName,
		CanonicalURL: j.CanonicalURL,
		AlternateURL: j.AlternateURL,
		TemplateID:   j.TemplateID,
		EventID:      j.EventID,
	}
}

// Event is a named message on the scheduling queue.
type Event struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Payload  GenerationRequest `json:"payload"`
	Attempts int               `json:"attempts"`
}

// Credentials are the model provider settings of one user.
type Credentials struct {
	UserID string `json:"user_id"`
	APIKey string `json:"-"`
	Model  string `json:"model"`
}

// DefaultModel is used when a user saved a key without choosing a model.
const DefaultModel = "gpt-4o-mini"

// SupportedModels lists the chat models users may select.
var SupportedModels = []string{"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}

// AuditLog is a simple audit event row.
type AuditLog struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
