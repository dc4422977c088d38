// Command subscribe registers the webhook endpoint at the events API for
// every workflow application. Run once per environment after deploying
// the webhook server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"regvil_tracker_backend/internal/auth/maskinporten"
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

	log := logger.New(cfg.Env)
	log.Info("registering event subscriptions", "endpoint", cfg.WebhookEndpoint)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := maskinporten.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize maskinporten client", "error", err)
		os.Exit(1)
	}

	client := webhook.NewSubscriptionClient(cfg, cfg, tokens, log)

	graph := workflow.Default()
	failed := 0
	for _, stage := range graph.Stages() {
		def, _ := graph.Definition(stage)
		sub, err := client.Subscribe(ctx, def.AppName)
		if err != nil {
			log.Error("subscription failed", "app", def.AppName, "error", err)
			failed++
			continue
		}
		log.Info("subscribed", "app", def.AppName, "subscription_id", sub.ID)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
