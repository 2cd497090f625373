package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/artifact"
	"landing-page-generator/internal/content"
	"landing-page-generator/internal/llm"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/render"
	"landing-page-generator/internal/telemetry"
	"landing-page-generator/internal/templates"
)

// Step names. They key the step cache and label metrics.
const (
	StepFetchCredentials = "fetch-credentials"
	StepDeriveKeywords   = "derive-keywords"
	StepGenerateContent  = "generate-content"
	StepRenderHTML       = "render-html"
	StepUploadArtifact   = "upload-artifact"
	StepCompleteJob      = "complete-job"
	StepMarkFailed       = "mark-failed"
)

// JobStore is the persistence the pipeline needs. *store.Store satisfies it.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.ContentJob, error)
	SetDerivedKeywords(ctx context.Context, id string, keywords []string) error
	MarkCompleted(ctx context.Context, id, location, name string, doc *models.GeneratedContent) (bool, error)
	MarkFailed(ctx context.Context, id, message string) (bool, error)
	GetCredentials(ctx context.Context, userID string) (models.Credentials, bool, error)
	GetStep(ctx context.Context, jobID, step string) ([]byte, bool, error)
	SaveStep(ctx context.Context, jobID, step string, output []byte) error
	AppendAudit(ctx context.Context, jobID, event, detail string) error
}

// TemplateLookup resolves a template id to its section list.
type TemplateLookup interface {
	Lookup(id string) (templates.Config, error)
}

// Renderer turns generated content into final HTML.
type Renderer interface {
	Render(ctx context.Context, in render.Input) (string, error)
}

// Options tune the retry envelope.
type Options struct {
	StepRetries    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Timeout        time.Duration
}

// Orchestrator runs one generation job end to end. It is the only writer of terminal job status.
type Orchestrator struct {
	jobs      JobStore
	templates TemplateLookup
	llm       llm.Factory
	renderer  Renderer
	artifacts artifact.Store
	opts      Options
	logger    zerolog.Logger
}

func New(jobs JobStore, tpl TemplateLookup, factory llm.Factory, renderer Renderer, artifacts artifact.Store, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.StepRetries < 0 {
		opts.StepRetries = 0
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	return &Orchestrator{
		jobs:      jobs,
		templates: tpl,
		llm:       factory,
		renderer:  renderer,
		artifacts: artifacts,
		opts:      opts,
		logger:    logger,
	}
}

// HandleEvent adapts Run to the worker's handler signature.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev models.Event) error {
	return o.Run(ctx, ev.Payload)
}

// Run executes every step for req. A job already in a terminal state is skipped.
// Once the job has been marked failed the returned error is final.
func (o *Orchestrator) Run(ctx context.Context, req models.GenerationRequest) error {
	log := o.logger.With().Str("job_id", req.JobID).Str("template_id", req.TemplateID).Logger()

	job, err := o.jobs.GetJob(ctx, req.JobID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			log.Warn().Msg("job record is gone; dropping event")
			return apperrors.Final(err)
		}
		return fmt.Errorf("load job %s: %w", req.JobID, err)
	}
	if job.Status.Terminal() {
		log.Info().Str("status", string(job.Status)).Msg("job already terminal; skipping")
		return nil
	}

	runCtx := ctx
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err = o.execute(runCtx, req, log)
	if err == nil {
		telemetry.PipelineSuccess.Inc()
		log.Info().Dur("took", time.Since(start)).Msg("landing page generated")
		return nil
	}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		err = apperrors.Timeout(err)
	case runCtx.Err() != nil:
		err = apperrors.Cancelled(err)
	}
	return o.fail(ctx, req.JobID, err, log)
}

func (o *Orchestrator) execute(ctx context.Context, req models.GenerationRequest, log zerolog.Logger) error {
	r := &run{o: o, jobID: req.JobID, log: log}

	var client llm.ChatClient
	err := r.attempt(ctx, StepFetchCredentials, func(ctx context.Context) error {
		creds, ok, err := o.jobs.GetCredentials(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		if !ok || strings.TrimSpace(creds.APIKey) == "" {
			return apperrors.Configuration("model API key is not configured")
		}
		c, err := o.llm.New(creds)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return err
	}

	keywords, err := cachedStep(ctx, r, StepDeriveKeywords, func(ctx context.Context) ([]string, error) {
		kw, err := content.DeriveKeywords(req.SiteName)
		if err != nil {
			return nil, err
		}
		if err := o.jobs.SetDerivedKeywords(ctx, req.JobID, kw); err != nil {
			return nil, fmt.Errorf("persist keywords: %w", err)
		}
		return kw, nil
	})
	if err != nil {
		return err
	}

	doc, err := cachedStep(ctx, r, StepGenerateContent, func(ctx context.Context) (*models.GeneratedContent, error) {
		cfg, err := o.templates.Lookup(req.TemplateID)
		if err != nil {
			return nil, err
		}
		gen := content.NewGenerator(client, log.With().Str("step", StepGenerateContent).Logger())
		return gen.GenerateAll(ctx, req.SiteName, keywords, cfg)
	})
	if err != nil {
		return err
	}

	html, err := cachedStep(ctx, r, StepRenderHTML, func(ctx context.Context) (string, error) {
		return o.renderer.Render(ctx, render.Input{
			TemplateID:   req.TemplateID,
			SiteName:     req.SiteName,
			CanonicalURL: req.CanonicalURL,
			AlternateURL: req.AlternateURL,
			Content:      doc,
		})
	})
	if err != nil {
		return err
	}

	uploaded, err := cachedStep(ctx, r, StepUploadArtifact, func(ctx context.Context) (uploadResult, error) {
		name := artifact.Name(req.SiteName, req.JobID)
		loc, err := o.artifacts.Upload(ctx, html, name)
		if err != nil {
			return uploadResult{}, err
		}
		return uploadResult{Location: loc, Name: name}, nil
	})
	if err != nil {
		return err
	}

	return r.attempt(ctx, StepCompleteJob, func(ctx context.Context) error {
		updated, err := o.jobs.MarkCompleted(ctx, req.JobID, uploaded.Location, uploaded.Name, doc)
		if err != nil {
			return err
		}
		if !updated {
			log.Warn().Msg("job left pending before completion; keeping existing status")
			return nil
		}
		o.audit(ctx, req.JobID, "completed", uploaded.Location, log)
		return nil
	})
}

type uploadResult struct {
	Location string `json:"location"`
	Name     string `json:"name"`
}

// fail records the sanitized error on the job. The caller's context may already be
// done, so the write runs on a detached context.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error, log zerolog.Logger) error {
	telemetry.PipelineFailures.Inc()
	msg := apperrors.Sanitize(cause)
	log.Error().Err(cause).Str("reason", msg).Msg("pipeline failed")

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	r := &run{o: o, jobID: jobID, log: log}
	err := r.attempt(writeCtx, StepMarkFailed, func(ctx context.Context) error {
		_, err := o.jobs.MarkFailed(ctx, jobID, msg)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("could not record failure")
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	o.audit(writeCtx, jobID, "failed", msg, log)
	return apperrors.Final(cause)
}

func (o *Orchestrator) audit(ctx context.Context, jobID, event, detail string, log zerolog.Logger) {
	if err := o.jobs.AppendAudit(ctx, jobID, event, detail); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("audit write failed")
	}
}
