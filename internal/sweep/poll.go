package sweep

import (
	"context"
	"strings"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/deadline"
	"regvil_tracker_backend/internal/eventlog"
)

// PollDeliveries checks every sent-but-unconfirmed shipment against the
// notification provider and records completed ones. Recipient-level
// failures are logged, not fatal: the next sweep pass will re-notify once
// the grace period runs out.
func (s *Sweep) PollDeliveries(ctx context.Context) error {
	records, err := s.ships.ListShipments(ctx, "")
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Type != eventlog.TypeNotificationSent {
			continue
		}

		received := rec
		received.Type = eventlog.TypeNotificationReceived

		done, err := s.ships.HasShipmentRecord(ctx, received.Key())
		if err != nil {
			return err
		}
		if done {
			continue
		}

		status, err := s.notify.GetShipmentStatus(ctx, rec.ShipmentID)
		if err != nil {
			s.log.Warn("shipment status poll failed", "shipment_id", rec.ShipmentID, "error", err)
			continue
		}
		if status.Status != altinn.StatusOrderCompleted {
			continue
		}

		received.Status = recipientOutcome(status)
		received.RecordedAt = deadline.FormatTimestamp(s.now())
		if received.Status != altinn.StatusEmailDelivered {
			s.log.Warn("notification not delivered",
				"shipment_id", rec.ShipmentID,
				"recipient", rec.Recipient,
				"status", received.Status,
			)
		}

		if err := s.ships.RecordShipment(ctx, received); err != nil {
			return err
		}
	}
	return nil
}

func recipientOutcome(status altinn.ShipmentStatus) string {
	if len(status.Recipients) == 0 {
		return status.Status
	}
	outcomes := make([]string, 0, len(status.Recipients))
	for _, r := range status.Recipients {
		outcomes = append(outcomes, r.Status)
	}
	return strings.Join(outcomes, ",")
}
