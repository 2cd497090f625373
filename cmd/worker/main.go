package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"landing-page-generator/internal/artifact"
	"landing-page-generator/internal/config"
	"landing-page-generator/internal/llm"
	"landing-page-generator/internal/logging"
	"landing-page-generator/internal/models"
	"landing-page-generator/internal/pipeline"
	"landing-page-generator/internal/queue"
	"landing-page-generator/internal/render"
	"landing-page-generator/internal/store"
	"landing-page-generator/internal/telemetry"
	"landing-page-generator/internal/templates"
	workerproc "landing-page-generator/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	catalog := templates.Default()
	if cfg.TemplateDir != "" {
		if catalog, err = templates.WithAssetDir(cfg.TemplateDir); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.TemplateDir).Msg("load templates")
		}
	}

	artifacts, err := artifact.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init artifact store")
	}

	q := queue.NewRedisQueue(cfg)
	defer q.Close()

	// Generate a unique worker ID from hostname or env var
	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	orchestrator := pipeline.New(
		st,
		catalog,
		llm.NewHTTPFactory(cfg.LLMBaseURL, cfg.LLMHTTPTimeout),
		render.New(catalog, logger.With().Str("component", "render").Logger()),
		artifacts,
		pipeline.Options{
			StepRetries:    cfg.StepRetries,
			BackoffInitial: cfg.StepBackoffInitial,
			BackoffMax:     cfg.StepBackoffMax,
			Timeout:        cfg.PipelineTimeout,
		},
		logger.With().Str("component", "pipeline").Logger(),
	)

	processor := workerproc.NewProcessorWithID(cfg, q, st, logger, workerID)
	processor.RegisterHandler(models.EventGenerate, orchestrator.HandleEvent)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().
		Str("worker_id", workerID).
		Dur("visibility", cfg.VisibilityTimeout).
		Dur("pipeline_timeout", cfg.PipelineTimeout).
		Int("step_retries", cfg.StepRetries).
		Msg("worker started")
	if err := processor.Run(ctx); err != nil {
		logger.Info().Err(err).Msg("worker stopped")
	}
}
