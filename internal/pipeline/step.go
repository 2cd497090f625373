package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"landing-page-generator/internal/apperrors"
	"landing-page-generator/internal/retry"
	"landing-page-generator/internal/telemetry"
)

// run carries per-job state shared by the steps.
type run struct {
	o     *Orchestrator
	jobID string
	log   zerolog.Logger
}

// attempt runs fn, re-attempting retryable failures up to StepRetries times.
func (r *run) attempt(ctx context.Context, step string, fn func(context.Context) error) error {
	log := r.log.With().Str("step", step).Logger()
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := fn(ctx)
		telemetry.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("step %s: %w", step, err)
		}
		if !apperrors.IsRetryable(err) || attempt >= r.o.opts.StepRetries {
			return fmt.Errorf("step %s: %w", step, err)
		}

		wait := retry.Backoff(r.o.opts.BackoffInitial, r.o.opts.BackoffMax, attempt+1)
		telemetry.StepRetries.WithLabelValues(step).Inc()
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", wait).Msg("step failed; retrying")
		r.o.audit(ctx, r.jobID, "step_retry", fmt.Sprintf("step=%s attempt=%d", step, attempt+1), log)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("step %s: %w", step, ctx.Err())
		case <-timer.C:
		}
	}
}

// cachedStep returns a memoized output when a previous delivery already finished
// the step for this job, otherwise runs it and records the output.
func cachedStep[T any](ctx context.Context, r *run, step string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	log := r.log.With().Str("step", step).Logger()

	raw, ok, err := r.o.jobs.GetStep(ctx, r.jobID, step)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("step cache read failed")
	case ok:
		if err := json.Unmarshal(raw, &out); err == nil {
			log.Debug().Msg("step output reused")
			return out, nil
		}
		log.Warn().Msg("cached step output is unreadable; re-running")
	}

	err = r.attempt(ctx, step, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		log.Warn().Err(err).Msg("step output not cacheable")
		return out, nil
	}
	if err := r.o.jobs.SaveStep(ctx, r.jobID, step, encoded); err != nil {
		log.Warn().Err(err).Msg("step cache write failed")
	}
	return out, nil
}
