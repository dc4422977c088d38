// Package sweep implements the periodic reminder pass over open instances
// and the delivery polling for notification shipments.
package sweep

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/deadline"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/logger"
)

// orgConcurrency caps how many organisations are swept in parallel.
// Within one organisation everything stays sequential, so its event
// documents are never written concurrently.
const orgConcurrency = 4

// PlatformAPI is the slice of the instance API the sweep needs.
type PlatformAPI interface {
	ListStoredInstances(ctx context.Context, app string) ([]report.Instance, error)
	GetInstanceData(ctx context.Context, app, partyID, instanceGUID, dataID string) (json.RawMessage, error)
}

// Notifier is the slice of the varsling client the sweep needs.
type Notifier interface {
	SendNotification(ctx context.Context, p altinn.SendParams) (altinn.Shipment, error)
	GetShipmentStatus(ctx context.Context, shipmentID string) (altinn.ShipmentStatus, error)
}

// ShipmentLog records and lists notification shipments.
type ShipmentLog interface {
	RecordShipment(ctx context.Context, rec eventlog.ShipmentRecord) error
	ListShipments(ctx context.Context, prefix string) ([]eventlog.ShipmentRecord, error)
	HasShipmentRecord(ctx context.Context, key string) (bool, error)
}

// Sweep walks all stored instances and reminds contacts about forms that
// have sat unanswered past the grace period.
type Sweep struct {
	api    PlatformAPI
	notify Notifier
	ships  ShipmentLog
	graph  *workflow.Graph
	log    *logger.Logger
	grace  time.Duration
	now    func() time.Time
}

// New creates a sweep. A non-positive grace falls back to 14 days.
func New(api PlatformAPI, notify Notifier, ships ShipmentLog, graph *workflow.Graph, grace time.Duration, log *logger.Logger) *Sweep {
	if grace <= 0 {
		grace = 14 * 24 * time.Hour
	}
	return &Sweep{
		api:    api,
		notify: notify,
		ships:  ships,
		graph:  graph,
		log:    log,
		grace:  grace,
		now:    time.Now,
	}
}

type candidate struct {
	def  workflow.Definition
	inst report.Instance
}

// Run performs one reminder pass. Organisations are processed in
// parallel; a failure for one instance is logged and does not stop the
// rest of the pass.
func (s *Sweep) Run(ctx context.Context) error {
	byOrg := make(map[string][]candidate)
	for _, stage := range s.graph.Stages() {
		def, _ := s.graph.Definition(stage)
		instances, err := s.api.ListStoredInstances(ctx, def.AppName)
		if err != nil {
			return err
		}
		for _, inst := range instances {
			org := inst.InstanceOwner.OrganisationNumber
			byOrg[org] = append(byOrg[org], candidate{def: def, inst: inst})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orgConcurrency)
	for org, items := range byOrg {
		org, items := org, items
		g.Go(func() error {
			for _, it := range items {
				if err := s.remind(gctx, it.def, it.inst); err != nil {
					s.log.Warn("reminder failed",
						"org_number", org,
						"app_name", it.def.AppName,
						"instance", it.inst.ID,
						"error", err,
					)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// remind sends at most one reminder for an instance, applying the skip
// rules in cheap-to-expensive order.
func (s *Sweep) remind(ctx context.Context, def workflow.Definition, inst report.Instance) error {
	if inst.Status.IsHardDeleted || inst.Status.IsSoftDeleted {
		return nil
	}

	elem, err := report.PickDataModelElement(inst.Data)
	if err != nil {
		return nil
	}
	if len(elem.Tags) == 0 {
		// Not a form we seeded.
		return nil
	}
	if elem.Answered() {
		return nil
	}

	visible := inst.VisibleAfter
	if visible == "" {
		visible = inst.Created
	}
	visibleAt, err := deadline.ParseTimestamp(visible)
	if err != nil {
		return err
	}

	now := s.now()
	if visibleAt.After(now) {
		return nil
	}
	if now.Sub(visibleAt) < s.grace {
		// The contact was notified when the form became visible; give
		// them the full grace period before nagging.
		return nil
	}

	partyID, instanceGUID := inst.IDParts()
	raw, err := s.api.GetInstanceData(ctx, def.AppName, partyID, instanceGUID, elem.ID)
	if err != nil {
		return err
	}
	var data report.ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	if data.Prefill == nil || data.Prefill.Kontaktperson.EPostadresse == "" {
		s.log.Warn("instance has no contact address", "instance", inst.ID)
		return nil
	}
	reportID := data.Prefill.ReportID

	sent, err := s.ships.ListShipments(ctx, eventlog.ShipmentPrefix(reportID, def.AppName, eventlog.TypeNotificationSent))
	if err != nil {
		return err
	}
	for _, rec := range sent {
		sentAt, parseErr := deadline.ParseTimestamp(rec.SendTime)
		if parseErr == nil && now.Sub(sentAt) < s.grace {
			return nil
		}
	}

	ship, err := s.notify.SendNotification(ctx, altinn.SendParams{
		Recipient:        data.Prefill.Kontaktperson.EPostadresse,
		Subject:          def.EmailSubject,
		Body:             def.EmailBody,
		SendTime:         deadline.FormatTimestamp(now),
		SendersReference: reportID,
	})
	if err != nil {
		return err
	}

	return s.ships.RecordShipment(ctx, eventlog.ShipmentRecord{
		Type:       eventlog.TypeNotificationSent,
		ReportID:   reportID,
		OrgNumber:  inst.InstanceOwner.OrganisationNumber,
		OrgName:    inst.InstanceOwner.Party.Name,
		AppName:    def.AppName,
		ShipmentID: ship.ID,
		Recipient:  ship.Recipient,
		SendTime:   ship.SendTime,
		RecordedAt: deadline.FormatTimestamp(now),
	})
}
