package scheduler

import (
	"context"
	"time"

	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"
)

// Dispatcher enqueues the periodic sweep and poll tasks. It runs next to
// the worker so a single scheduler binary drives the whole cycle.
type Dispatcher struct {
	client        *Client
	sweepInterval time.Duration
	pollInterval  time.Duration
	log           *logger.Logger
}

func NewDispatcher(client *Client, cfg config.SchedulerConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:        client,
		sweepInterval: cfg.GetSweepInterval(),
		pollInterval:  cfg.GetPollInterval(),
		log:           log,
	}
}

// Run dispatches until the context is cancelled. Both tasks are enqueued
// once at startup so a restart never waits a full interval.
func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	d.dispatchSweep(ctx)
	d.dispatchPoll(ctx)

	sweepTicker := time.NewTicker(d.sweepInterval)
	defer sweepTicker.Stop()
	pollTicker := time.NewTicker(d.pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			d.dispatchSweep(ctx)
		case <-pollTicker.C:
			d.dispatchPoll(ctx)
		}
	}
}

func (d *Dispatcher) dispatchSweep(ctx context.Context) {
	if err := d.client.EnqueueReminderSweep(ctx, time.Now()); err != nil {
		d.log.Error("failed to enqueue reminder sweep", "error", err)
		return
	}
	d.log.TaskEvent(TaskReminderSweep, "enqueued")
}

func (d *Dispatcher) dispatchPoll(ctx context.Context) {
	if err := d.client.EnqueueDeliveryPoll(ctx, time.Now()); err != nil {
		d.log.Error("failed to enqueue delivery poll", "error", err)
		return
	}
	d.log.TaskEvent(TaskDeliveryPoll, "enqueued")
}
