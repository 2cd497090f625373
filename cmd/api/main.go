package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"landing-page-generator/internal/api"
	"landing-page-generator/internal/artifact"
	"landing-page-generator/internal/config"
	"landing-page-generator/internal/logging"
	"landing-page-generator/internal/queue"
	"landing-page-generator/internal/ratelimit"
	"landing-page-generator/internal/store"
	"landing-page-generator/internal/templates"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, "api")

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
	limiter := ratelimit.NewSubmissionLimiter(q.Client(), cfg.RateLimitCapacity, cfg.RateLimitRefill)

	server := api.New(st, q, limiter, catalog, artifacts, logger).WithOperatorToken(cfg.OperatorToken)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("port", cfg.HTTPPort).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info().Msg("api stopped")
}
