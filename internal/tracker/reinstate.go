package tracker

import (
	"context"
	"encoding/json"
	"fmt"

	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/logger"
)

// DeleterAPI extends the platform API with the calls re-instantiation
// needs. Satisfied by altinn.InstanceClient.
type DeleterAPI interface {
	PlatformAPI
	DeleteTag(ctx context.Context, app, partyID, instanceGUID, dataID, tag string) error
	DeleteInstance(ctx context.Context, app, partyID, instanceGUID string, hard bool) error
}

// Canceler cancels not-yet-sent notification orders. Satisfied by
// altinn.VarslingClient.
type Canceler interface {
	CancelNotification(ctx context.Context, shipmentID string) error
}

// ShipmentReader lists recorded shipments. Satisfied by eventlog.Store.
type ShipmentReader interface {
	ListShipments(ctx context.Context, prefix string) ([]eventlog.ShipmentRecord, error)
}

// Reinstantiator replaces a stage instance that went out with wrong
// content or visibility: the old instance is hard-deleted, its pending
// notifications cancelled, and a fresh instance created from the same
// prefill.
type Reinstantiator struct {
	tracker *Tracker
	api     DeleterAPI
	notify  Canceler
	ships   ShipmentReader
	log     *logger.Logger
}

func NewReinstantiator(tr *Tracker, api DeleterAPI, notify Canceler, ships ShipmentReader, log *logger.Logger) *Reinstantiator {
	return &Reinstantiator{
		tracker: tr,
		api:     api,
		notify:  notify,
		ships:   ships,
		log:     log,
	}
}

// Reinstantiate replaces one instance. visibleFrom is the visibility of
// the replacement; pass the old instance's value to keep it.
func (r *Reinstantiator) Reinstantiate(ctx context.Context, appName, partyID, instanceGUID, visibleFrom string) (Result, error) {
	def, ok := r.tracker.graph.ByApp(appName)
	if !ok {
		return Result{}, apperr.Validation(fmt.Sprintf("unknown application %q", appName)).WithOp("tracker.Reinstantiate")
	}

	created, err := r.tracker.events.FindByInstance(ctx, instanceGUID, def.CreatedEvent)
	if err != nil {
		return Result{}, err
	}

	inst, err := r.api.GetInstance(ctx, def.AppName, partyID, instanceGUID)
	if err != nil {
		return Result{}, err
	}
	elem, err := report.PickDataModelElement(inst.Data)
	if err != nil {
		return Result{}, err
	}

	raw, err := r.api.GetInstanceData(ctx, def.AppName, partyID, instanceGUID, elem.ID)
	if err != nil {
		return Result{}, err
	}
	var data report.ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{}, apperr.Wrap(apperr.KindDecode, "instance data is not a valid report", err).WithOp("tracker.Reinstantiate")
	}
	if data.Prefill == nil {
		return Result{}, apperr.Consistency("instance data has no prefill section").WithOp("tracker.Reinstantiate")
	}

	log := r.log.WithReport(created.ReportID, created.OrgNumber)

	// Cancel pending notifications before the instance disappears, so no
	// one is pointed at a deleted form.
	sent, err := r.ships.ListShipments(ctx, eventlog.ShipmentPrefix(created.ReportID, def.AppName, eventlog.TypeNotificationSent))
	if err != nil {
		return Result{}, err
	}
	for _, rec := range sent {
		if cancelErr := r.notify.CancelNotification(ctx, rec.ShipmentID); cancelErr != nil {
			// Already-dispatched shipments cannot be cancelled.
			log.Warn("could not cancel notification", "shipment_id", rec.ShipmentID, "error", cancelErr)
		}
	}

	// Untag first: a completion signal racing the delete then skips the
	// instance instead of downloading it.
	for _, tag := range elem.Tags {
		if tagErr := r.api.DeleteTag(ctx, def.AppName, partyID, instanceGUID, elem.ID, tag); tagErr != nil {
			log.Warn("could not remove tag before delete", "tag", tag, "error", tagErr)
		}
	}

	if err := r.api.DeleteInstance(ctx, def.AppName, partyID, instanceGUID, true); err != nil {
		return Result{}, err
	}
	log.Info("instance deleted for re-instantiation", "stage", def.Stage, "instance_id", instanceGUID)

	inst, err = r.tracker.CreateStageInstance(ctx, def, CreateParams{
		Prefill:     *data.Prefill,
		ReportID:    created.ReportID,
		OrgNumber:   created.OrgNumber,
		OrgName:     created.OrgName,
		VisibleFrom: visibleFrom,
	})
	if err != nil {
		return Result{}, err
	}

	newParty, newGUID := inst.IDParts()
	return Result{
		Outcome:      OutcomeProcessed,
		Stage:        def,
		ReportID:     created.ReportID,
		OrgNumber:    created.OrgNumber,
		OrgName:      created.OrgName,
		PartyID:      newParty,
		InstanceGUID: newGUID,
		VisibleFrom:  visibleFrom,
		Data:         data,
		Raw:          raw,
	}, nil
}
