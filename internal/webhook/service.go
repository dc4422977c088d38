package webhook

import (
	"context"
	"time"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/deadline"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/tracker"
	"regvil_tracker_backend/platform/logger"
)

// Notifier sends stage notifications. Satisfied by altinn.VarslingClient.
type Notifier interface {
	SendNotification(ctx context.Context, p altinn.SendParams) (altinn.Shipment, error)
}

// ShipmentLog records dispatched notifications. Satisfied by eventlog.Store.
type ShipmentLog interface {
	RecordShipment(ctx context.Context, rec eventlog.ShipmentRecord) error
}

// EventResponse is the acknowledgment returned to the events platform.
type EventResponse struct {
	Status     string `json:"status"`
	ReportID   string `json:"reportId,omitempty"`
	OrgNumber  string `json:"orgNumber,omitempty"`
	Stage      string `json:"stage,omitempty"`
	NextApp    string `json:"nextApp,omitempty"`
	SkipReason string `json:"skipReason,omitempty"`
}

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusCompleted = "completed"
)

// Service runs a completed instance through the tracker pipeline.
type Service struct {
	tracker *tracker.Tracker
	notify  Notifier
	ships   ShipmentLog
	log     *logger.Logger
	now     func() time.Time
}

func NewService(tr *tracker.Tracker, notify Notifier, ships ShipmentLog, log *logger.Logger) *Service {
	return &Service{
		tracker: tr,
		notify:  notify,
		ships:   ships,
		log:     log,
		now:     time.Now,
	}
}

// HandleCompletion downloads the completed submission, instantiates the
// successor stage, and tells the contact person about it. Notification
// delivery is best effort; a send failure never rolls back the advance.
func (s *Service) HandleCompletion(ctx context.Context, ref InstanceRef) (EventResponse, error) {
	res, err := s.tracker.ProcessCompleted(ctx, ref.PartyID, ref.InstanceGUID, ref.AppName)
	if err != nil {
		return EventResponse{}, err
	}
	if res.Outcome == tracker.OutcomeSkipped {
		return EventResponse{
			Status:     StatusSkipped,
			ReportID:   res.ReportID,
			OrgNumber:  res.OrgNumber,
			Stage:      string(res.Stage.Stage),
			SkipReason: res.SkipReason,
		}, nil
	}

	adv, err := s.tracker.AdvanceStage(ctx, res)
	if err != nil {
		return EventResponse{}, err
	}

	resp := EventResponse{
		ReportID:  adv.ReportID,
		OrgNumber: adv.OrgNumber,
		Stage:     string(adv.Stage.Stage),
	}

	switch adv.Outcome {
	case tracker.OutcomeTerminal:
		resp.Status = StatusCompleted
		return resp, nil
	case tracker.OutcomeSkipped:
		resp.Status = StatusSkipped
		resp.SkipReason = adv.SkipReason
		return resp, nil
	}

	s.notifyNextStage(ctx, adv)

	resp.Status = StatusProcessed
	resp.NextApp = adv.Stage.AppName
	return resp, nil
}

// notifyNextStage mails the contact person that a new form is waiting,
// timed to when the instance becomes visible.
func (s *Service) notifyNextStage(ctx context.Context, adv tracker.Result) {
	log := s.log.WithReport(adv.ReportID, adv.OrgNumber)

	if adv.Data.Prefill == nil || adv.Data.Prefill.Kontaktperson.EPostadresse == "" {
		log.Warn("no contact email on record, stage notification not sent", "stage", adv.Stage.Stage)
		return
	}

	recipient := adv.Data.Prefill.Kontaktperson.EPostadresse
	shipment, err := s.notify.SendNotification(ctx, altinn.SendParams{
		Recipient:        recipient,
		Subject:          adv.Stage.EmailSubject,
		Body:             adv.Stage.EmailBody,
		SendTime:         adv.VisibleFrom,
		SendersReference: adv.ReportID,
	})
	if err != nil {
		log.Warn("stage notification failed", "stage", adv.Stage.Stage, "error", err)
		return
	}

	err = s.ships.RecordShipment(ctx, eventlog.ShipmentRecord{
		Type:       eventlog.TypeNotificationSent,
		ReportID:   adv.ReportID,
		OrgNumber:  adv.OrgNumber,
		OrgName:    adv.OrgName,
		AppName:    adv.Stage.AppName,
		ShipmentID: shipment.ID,
		Recipient:  recipient,
		SendTime:   shipment.SendTime,
		RecordedAt: deadline.FormatTimestamp(s.now()),
	})
	if err != nil {
		log.Error("failed to record stage notification shipment", "shipment_id", shipment.ID, "error", err)
		return
	}

	log.Info("stage notification scheduled", "stage", adv.Stage.Stage, "shipment_id", shipment.ID, "send_time", shipment.SendTime)
}
