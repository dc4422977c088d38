package eventlog

import (
	"context"

	"regvil_tracker_backend/internal/docstore"
)

// RecordShipment stores a notification shipment record under its key.
func (s *Store) RecordShipment(ctx context.Context, rec ShipmentRecord) error {
	if err := s.docs.Put(ctx, docstore.CategoryVarsling, rec.Key(), rec); err != nil {
		s.log.StoreError("eventlog.RecordShipment", err)
		return err
	}
	s.log.Info("shipment recorded",
		"report_id", rec.ReportID,
		"app_name", rec.AppName,
		"record_type", rec.Type,
		"shipment_id", rec.ShipmentID,
	)
	return nil
}

// ListShipments loads all shipment records whose key starts with prefix.
func (s *Store) ListShipments(ctx context.Context, prefix string) ([]ShipmentRecord, error) {
	keys, err := s.docs.List(ctx, docstore.CategoryVarsling, prefix)
	if err != nil {
		return nil, err
	}

	records := make([]ShipmentRecord, 0, len(keys))
	for _, key := range keys {
		var rec ShipmentRecord
		if err := s.docs.Get(ctx, docstore.CategoryVarsling, key, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// HasShipmentRecord reports whether a record with the given key exists.
func (s *Store) HasShipmentRecord(ctx context.Context, key string) (bool, error) {
	return s.docs.Exists(ctx, docstore.CategoryVarsling, key)
}
