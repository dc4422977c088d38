// Package tracker implements the instance lifecycle: reacting to completed
// forms, recording their data, and instantiating the next stage.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/deadline"
	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/logger"
)

// PlatformAPI is the slice of the instance API the tracker needs.
type PlatformAPI interface {
	GetInstance(ctx context.Context, app, partyID, instanceGUID string) (report.Instance, error)
	GetInstanceData(ctx context.Context, app, partyID, instanceGUID, dataID string) (json.RawMessage, error)
	CreateInstance(ctx context.Context, app string, desc altinn.InstanceDescriptor, datamodel any) (report.Instance, error)
	TagInstanceData(ctx context.Context, app, partyID, instanceGUID, dataID, tag string) error
}

// EventLog is the slice of the event log the tracker needs.
type EventLog interface {
	HasProcessed(ctx context.Context, orgNumber, reportID, eventType string) (bool, error)
	Append(ctx context.Context, orgNumber string, ev eventlog.Event) error
	FindByInstance(ctx context.Context, instanceID, eventType string) (eventlog.Event, error)
}

// Tracker coordinates the platform API, the event log and the snapshot
// store around the stage graph.
type Tracker struct {
	api    PlatformAPI
	events EventLog
	docs   docstore.Store
	graph  *workflow.Graph
	log    *logger.Logger
	now    func() time.Time
}

// New creates a tracker.
func New(api PlatformAPI, events EventLog, docs docstore.Store, graph *workflow.Graph, log *logger.Logger) *Tracker {
	return &Tracker{
		api:    api,
		events: events,
		docs:   docs,
		graph:  graph,
		log:    log,
		now:    time.Now,
	}
}

// Outcome classifies what a tracker operation did.
type Outcome string

const (
	// OutcomeProcessed means the operation ran and changed state.
	OutcomeProcessed Outcome = "processed"
	// OutcomeSkipped means a precondition failed and nothing was changed.
	// Skipping is a normal consequence of at-least-once event delivery.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeTerminal means the report finished its last stage.
	OutcomeTerminal Outcome = "terminal"
)

// Result carries the context of a processed submission between the
// download step and the advance step.
type Result struct {
	Outcome    Outcome
	SkipReason string

	Stage        workflow.Definition
	ReportID     string
	OrgNumber    string
	OrgName      string
	PartyID      string
	InstanceGUID string
	VisibleFrom  string

	Data report.ReportData
	Raw  json.RawMessage
}

// ProcessCompleted handles a process-completed signal for one instance:
// verify the form was actually submitted and answered, snapshot its data,
// record the download, and tag the instance as collected. Precondition
// failures return OutcomeSkipped, not an error.
func (t *Tracker) ProcessCompleted(ctx context.Context, partyID, instanceGUID, appName string) (Result, error) {
	def, ok := t.graph.ByApp(appName)
	if !ok {
		return Result{}, apperr.Validation(fmt.Sprintf("unknown application %q", appName)).WithOp("tracker.ProcessCompleted")
	}

	created, err := t.events.FindByInstance(ctx, instanceGUID, def.CreatedEvent)
	if err != nil {
		// An instance we have no creation record for must not be guessed
		// at; surface it.
		return Result{}, err
	}

	inst, err := t.api.GetInstance(ctx, def.AppName, partyID, instanceGUID)
	if err != nil {
		return Result{}, err
	}

	if inst.InstanceOwner.OrganisationNumber != created.OrgNumber {
		return Result{}, apperr.Consistency(fmt.Sprintf(
			"event log says org %s but instance %s belongs to org %s",
			created.OrgNumber, instanceGUID, inst.InstanceOwner.OrganisationNumber,
		)).WithOp("tracker.ProcessCompleted")
	}

	log := t.log.WithReport(created.ReportID, created.OrgNumber)

	elem, err := report.PickDataModelElement(inst.Data)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Stage:        def,
		ReportID:     created.ReportID,
		OrgNumber:    created.OrgNumber,
		OrgName:      created.OrgName,
		PartyID:      partyID,
		InstanceGUID: instanceGUID,
	}

	if !slices.Equal(elem.Tags, []string{def.SubmittedTag}) {
		res.Outcome = OutcomeSkipped
		res.SkipReason = "form not marked as submitted"
		log.Info("submission skipped", "reason", res.SkipReason, "tags", elem.Tags)
		return res, nil
	}
	if !elem.Answered() {
		res.Outcome = OutcomeSkipped
		res.SkipReason = "form untouched since instantiation"
		log.Info("submission skipped", "reason", res.SkipReason)
		return res, nil
	}

	done, err := t.events.HasProcessed(ctx, created.OrgNumber, created.ReportID, def.DownloadedEvent)
	if err != nil {
		return Result{}, err
	}
	if done {
		res.Outcome = OutcomeSkipped
		res.SkipReason = "already downloaded"
		log.Info("submission skipped", "reason", res.SkipReason)
		return res, nil
	}

	raw, err := t.api.GetInstanceData(ctx, def.AppName, partyID, instanceGUID, elem.ID)
	if err != nil {
		return Result{}, err
	}

	var data report.ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{}, apperr.Wrap(apperr.KindDecode, "submitted data is not a valid report", err).WithOp("tracker.ProcessCompleted")
	}

	snapshotKey := fmt.Sprintf("%s_%s_%s_%s_%s", def.AppName, created.OrgNumber, created.ReportID, partyID, instanceGUID)
	if err := t.docs.Put(ctx, docstore.CategoryDataStorage, snapshotKey, json.RawMessage(raw)); err != nil {
		return Result{}, err
	}

	err = t.events.Append(ctx, created.OrgNumber, eventlog.Event{
		Type:          def.DownloadedEvent,
		ReportID:      created.ReportID,
		OrgNumber:     created.OrgNumber,
		OrgName:       created.OrgName,
		AppName:       def.AppName,
		PartyID:       partyID,
		InstanceID:    instanceGUID,
		DataElementID: elem.ID,
		ProcessedAt:   deadline.FormatTimestamp(t.now()),
		Data:          raw,
	})
	if err != nil {
		return Result{}, err
	}

	if err := t.api.TagInstanceData(ctx, def.AppName, partyID, instanceGUID, elem.ID, def.DownloadedTag); err != nil {
		// The download is already on record; a lost tag only costs a
		// redundant skip on redelivery.
		log.Warn("failed to tag instance as downloaded", "error", err)
	}

	log.Info("submission downloaded", "stage", def.Stage, "instance_id", instanceGUID)

	res.Outcome = OutcomeProcessed
	res.Data = data
	res.Raw = raw
	return res, nil
}

// AdvanceStage instantiates the successor stage for a processed
// submission. On the final stage it returns OutcomeTerminal. A successor
// already on record returns OutcomeSkipped.
func (t *Tracker) AdvanceStage(ctx context.Context, res Result) (Result, error) {
	next, ok := t.graph.Next(res.Stage.Stage)
	if !ok {
		out := res
		out.Outcome = OutcomeTerminal
		t.log.WithReport(res.ReportID, res.OrgNumber).Info("report reached final stage")
		return out, nil
	}

	done, err := t.events.HasProcessed(ctx, res.OrgNumber, res.ReportID, next.CreatedEvent)
	if err != nil {
		return Result{}, err
	}
	if done {
		out := res
		out.Outcome = OutcomeSkipped
		out.SkipReason = "next stage already instantiated"
		return out, nil
	}

	if res.Data.Prefill == nil {
		return Result{}, apperr.Consistency("downloaded report has no prefill section").WithOp("tracker.AdvanceStage")
	}

	visibleFrom, err := deadline.VisibleFrom(res.Stage.Stage, res.Data, res.Stage.VisibilityOffset, t.now())
	if err != nil {
		return Result{}, err
	}

	inst, err := t.CreateStageInstance(ctx, next, CreateParams{
		Prefill:     *res.Data.Prefill,
		ReportID:    res.ReportID,
		OrgNumber:   res.OrgNumber,
		OrgName:     res.OrgName,
		VisibleFrom: visibleFrom,
	})
	if err != nil {
		return Result{}, err
	}

	partyID, instanceGUID := inst.IDParts()
	return Result{
		Outcome:      OutcomeProcessed,
		Stage:        next,
		ReportID:     res.ReportID,
		OrgNumber:    res.OrgNumber,
		OrgName:      res.OrgName,
		PartyID:      partyID,
		InstanceGUID: instanceGUID,
		VisibleFrom:  visibleFrom,
		Data:         res.Data,
	}, nil
}
