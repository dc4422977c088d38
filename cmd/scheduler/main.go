package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/auth/maskinporten"
	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/scheduler"
	"regvil_tracker_backend/internal/sweep"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env,
		"sweep_interval", cfg.SweepInterval, "poll_interval", cfg.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := docstore.NewMinIO(cfg)
	if err != nil {
		log.Error("failed to initialize document store", "error", err)
		panic("failed to initialize document store: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure document bucket", 5, 2*time.Second, func() error {
		return docs.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure document bucket exists", "error", err, "bucket", cfg.DocStoreBucket)
		panic("failed to ensure document bucket exists: " + err.Error())
	}

	tokens, err := maskinporten.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize maskinporten client", "error", err)
		panic("failed to initialize maskinporten client: " + err.Error())
	}

	instances := altinn.NewInstanceClient(cfg, tokens, log)
	varsling := altinn.NewVarslingClient(cfg, tokens, log)
	ships := eventlog.NewStore(docs, log)

	sw := sweep.New(instances, varsling, ships, workflow.Default(), cfg.ReminderGrace, log)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := scheduler.NewDispatcher(client, cfg, log)
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, sw, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
