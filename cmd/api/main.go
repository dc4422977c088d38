package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/auth/maskinporten"
	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/http/router"
	"regvil_tracker_backend/internal/tracker"
	"regvil_tracker_backend/internal/webhook"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting webhook server", "env", cfg.Env, "addr", cfg.HTTPAddr, "namespace", cfg.DocStoreNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("document store initialized", "bucket", cfg.DocStoreBucket)

	tokens, err := maskinporten.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize maskinporten client", "error", err)
		panic("failed to initialize maskinporten client: " + err.Error())
	}

	instances := altinn.NewInstanceClient(cfg, tokens, log)
	varsling := altinn.NewVarslingClient(cfg, tokens, log)

	// ========================================================================
	// Domain Wiring (Composition Root)
	// ========================================================================

	events := eventlog.NewStore(docs, log)
	graph := workflow.Default()

	tr := tracker.New(instances, events, docs, graph, log)
	svc := webhook.NewService(tr, varsling, events, log)
	handler := webhook.NewHandler(svc, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	engine := router.New(cfg, handler, log)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
