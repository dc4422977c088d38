package scheduler

import (
	"context"
	"fmt"

	"regvil_tracker_backend/internal/sweep"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sweep  *sweep.Sweep
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sw *sweep.Sweep, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	// The sweep already parallelises internally; one task of each kind
	// at a time is plenty.
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		sweep:  sw,
		log:    log,
	}

	mux.HandleFunc(TaskReminderSweep, w.handleReminderSweep)
	mux.HandleFunc(TaskDeliveryPoll, w.handleDeliveryPoll)

	return w, nil
}

func (w *Worker) handleReminderSweep(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseReminderSweepPayload(task); err != nil {
		return err
	}

	w.log.TaskEvent(TaskReminderSweep, "started")
	if err := w.sweep.Run(ctx); err != nil {
		w.log.Error("reminder sweep failed", "error", err)
		return err
	}
	w.log.TaskEvent(TaskReminderSweep, "finished")
	return nil
}

func (w *Worker) handleDeliveryPoll(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseDeliveryPollPayload(task); err != nil {
		return err
	}

	w.log.TaskEvent(TaskDeliveryPoll, "started")
	if err := w.sweep.PollDeliveries(ctx); err != nil {
		w.log.Error("delivery poll failed", "error", err)
		return err
	}
	w.log.TaskEvent(TaskDeliveryPoll, "finished")
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
