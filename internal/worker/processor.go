package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/config"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/queue"
	"landing-page-generator/internal/retry"
	"landing-page-generator/internal/telemetry"
)

// Auditor records per-job audit events. *store.Store satisfies it.
type Auditor interface {
	AppendAudit(ctx context.Context, jobID, event, detail string) error
}

// Processor drives the worker execution loop.
type Processor struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	audit    Auditor
	handlers map[string]Handler
	workerID string
	logger   zerolog.Logger
}

// Handler executes one queue event.
type Handler func(ctx context.Context, ev models.Event) error

func NewProcessor(cfg config.Config, q *queue.RedisQueue, audit Auditor, logger zerolog.Logger) *Processor {
	return NewProcessorWithID(cfg, q, audit, logger, "")
}

// NewProcessorWithID creates a processor with a specific worker ID for tracking.
func NewProcessorWithID(cfg config.Config, q *queue.RedisQueue, audit Auditor, logger zerolog.Logger, workerID string) *Processor {
	if workerID != "" {
		logger = logger.With().Str("worker_id", workerID).Logger()
	}
	return &Processor{
		cfg:      cfg,
		queue:    q,
		audit:    audit,
		handlers: make(map[string]Handler),
		workerID: workerID,
		logger:   logger,
	}
}

// RegisterHandler binds a handler to an event name.
func (p *Processor) RegisterHandler(name string, handler Handler) {
	if name == "" || handler == nil {
		return
	}
	p.handlers[name] = handler
}

// Run starts the main worker loop until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.housekeeping(ctx)

		handled, err := p.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("dequeue failed")
		}
		if handled {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.WorkerPollInterval):
		}
	}
}

// housekeeping promotes due retries, reclaims expired leases, and samples queue depth.
func (p *Processor) housekeeping(ctx context.Context) {
	now := time.Now()
	if n, err := p.queue.PromoteScheduled(ctx, now, int64(p.cfg.ScheduledBatchSize)); err == nil && n > 0 {
		p.logger.Debug().Int("count", n).Msg("promoted scheduled events")
	}
	if reclaimed, _ := p.queue.RequeueExpired(ctx, now, 100); len(reclaimed) > 0 {
		p.logger.Warn().Strs("event_ids", reclaimed).Msg("reclaimed expired leases")
	}
	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
}

// ProcessNext leases and handles at most one event. It reports whether an event was taken.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	eventID, err := p.queue.DequeueWithLease(ctx)
	if err != nil {
		return false, err
	}
	if eventID == "" {
		return false, nil
	}

	log := p.logger.With().Str("event_id", eventID).Logger()
	ev, priority, err := p.queue.Load(ctx, eventID)
	if err != nil {
		log.Error().Err(err).Msg("event body unreadable; dropping")
		_ = p.queue.Complete(ctx, eventID)
		return true, nil
	}
	jobID := ev.Payload.JobID
	log = log.With().Str("job_id", jobID).Str("event", ev.Name).Int("attempt", ev.Attempts+1).Logger()

	// Pipelines may outlive the default lease.
	if lease := p.cfg.PipelineTimeout + time.Minute; lease > p.queue.VisibilityTimeout() {
		_ = p.queue.ExtendLease(ctx, eventID, lease)
	}

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	err = p.dispatch(ctx, ev)
	if err == nil {
		_ = p.queue.Complete(ctx, eventID)
		p.record(ctx, jobID, "event_processed", ev.Name, log)
		log.Info().Msg("event processed")
		return true, nil
	}

	attempts := ev.Attempts + 1
	if !apperrors.IsRetryable(err) || attempts >= p.cfg.MaxAttempts {
		_ = p.queue.Ack(ctx, eventID)
		_ = p.queue.DLQPush(ctx, eventID)
		p.record(ctx, jobID, "dead_letter", apperrors.Sanitize(err), log)
		telemetry.WorkerDeadLetter.Inc()
		log.Error().Err(err).Msg("event dead-lettered")
		return true, nil
	}

	ev.Attempts = attempts
	nextRun := time.Now().Add(retry.Backoff(p.cfg.BackoffInitial, p.cfg.BackoffMax, attempts))
	_ = p.queue.Ack(ctx, eventID)
	if err := p.queue.Schedule(ctx, ev, priority, nextRun); err != nil {
		log.Error().Err(err).Msg("could not reschedule event")
		return true, nil
	}
	p.record(ctx, jobID, "retry_scheduled", fmt.Sprintf("next_run=%s attempts=%d", nextRun.UTC().Format(time.RFC3339), attempts), log)
	log.Warn().Err(err).Time("next_run", nextRun).Msg("event failed; retry scheduled")
	return true, nil
}

func (p *Processor) dispatch(ctx context.Context, ev models.Event) (err error) {
	handler, ok := p.handlers[ev.Name]
	if !ok {
		return apperrors.Validation(fmt.Sprintf("no handler registered for event %q", ev.Name))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, ev)
}

func (p *Processor) record(ctx context.Context, jobID, event, detail string, log zerolog.Logger) {
	if p.audit == nil || jobID == "" {
		return
	}
	if err := p.audit.AppendAudit(ctx, jobID, event, detail); err != nil {
		log.Warn().Err(err).Str("audit_event", event).Msg("audit write failed")
	}
}
