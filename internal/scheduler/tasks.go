// Package scheduler wires the reminder sweep and the delivery poll into
// asynq: task definitions, an enqueue client, the worker, and a periodic
// dispatcher.
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskReminderSweep = "reminder.sweep"

const TaskDeliveryPoll = "notification.poll"

type ReminderSweepPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

type DeliveryPollPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

func NewReminderSweepTask(payload ReminderSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderSweep, data), nil
}

func ParseReminderSweepPayload(task *asynq.Task) (ReminderSweepPayload, error) {
	var payload ReminderSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderSweepPayload{}, err
	}
	return payload, nil
}

func NewDeliveryPollTask(payload DeliveryPollPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliveryPoll, data), nil
}

func ParseDeliveryPollPayload(task *asynq.Task) (DeliveryPollPayload, error) {
	var payload DeliveryPollPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DeliveryPollPayload{}, err
	}
	return payload, nil
}
