package tracker

import (
	"context"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/deadline"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/internal/workflow"
)

// CreateParams describes one stage instance to create.
type CreateParams struct {
	Prefill     report.Prefill
	ReportID    string
	OrgNumber   string
	OrgName     string
	VisibleFrom string
}

// CreateStageInstance posts a new instance for the given stage, tags its
// data element with the stage's submitted tag, and records the creation
// event. Also used directly by the campaign seeding command.
func (t *Tracker) CreateStageInstance(ctx context.Context, def workflow.Definition, p CreateParams) (report.Instance, error) {
	desc := altinn.InstanceDescriptor{
		InstanceOwner: altinn.DescriptorOwner{OrganisationNumber: p.OrgNumber},
		VisibleAfter:  p.VisibleFrom,
	}

	inst, err := t.api.CreateInstance(ctx, def.AppName, desc, report.PrefillDocument{Prefill: p.Prefill})
	if err != nil {
		return report.Instance{}, err
	}

	partyID, instanceGUID := inst.IDParts()
	log := t.log.WithReport(p.ReportID, p.OrgNumber)

	var dataElementID string
	if elem, pickErr := report.PickDataModelElement(inst.Data); pickErr == nil {
		dataElementID = elem.ID
		if tagErr := t.api.TagInstanceData(ctx, def.AppName, partyID, instanceGUID, elem.ID, def.SubmittedTag); tagErr != nil {
			log.Warn("failed to tag created instance", "error", tagErr)
		}
	} else {
		log.Warn("created instance has no data model element", "instance_id", instanceGUID)
	}

	err = t.events.Append(ctx, p.OrgNumber, eventlog.Event{
		Type:            def.CreatedEvent,
		ReportID:        p.ReportID,
		OrgNumber:       p.OrgNumber,
		OrgName:         p.OrgName,
		AppName:         def.AppName,
		PartyID:         partyID,
		InstanceID:      instanceGUID,
		DataElementID:   dataElementID,
		InstanceCreated: inst.Created,
		ProcessedAt:     deadline.FormatTimestamp(t.now()),
	})
	if err != nil {
		return report.Instance{}, err
	}

	log.Info("stage instance created",
		"stage", def.Stage,
		"instance_id", instanceGUID,
		"visible_from", p.VisibleFrom,
	)
	return inst, nil
}

// SeedInitial creates the initial-stage instance for one validated flat
// record, unless the event log already has it.
func (t *Tracker) SeedInitial(ctx context.Context, rec report.FlatRecord, orgName string) (Result, error) {
	def, _ := t.graph.Definition(workflow.StageInitial)

	done, err := t.events.HasProcessed(ctx, rec.CompanyOrgNumber, rec.ReportID, def.CreatedEvent)
	if err != nil {
		return Result{}, err
	}
	if done {
		return Result{
			Outcome:    OutcomeSkipped,
			SkipReason: "initial instance already on record",
			Stage:      def,
			ReportID:   rec.ReportID,
			OrgNumber:  rec.CompanyOrgNumber,
		}, nil
	}

	visibleFrom := deadline.FormatTimestamp(t.now())
	inst, err := t.CreateStageInstance(ctx, def, CreateParams{
		Prefill:     report.BuildPrefill(rec),
		ReportID:    rec.ReportID,
		OrgNumber:   rec.CompanyOrgNumber,
		OrgName:     orgName,
		VisibleFrom: visibleFrom,
	})
	if err != nil {
		return Result{}, err
	}

	partyID, instanceGUID := inst.IDParts()
	return Result{
		Outcome:      OutcomeProcessed,
		Stage:        def,
		ReportID:     rec.ReportID,
		OrgNumber:    rec.CompanyOrgNumber,
		OrgName:      orgName,
		PartyID:      partyID,
		InstanceGUID: instanceGUID,
		VisibleFrom:  visibleFrom,
	}, nil
}
