package eventlog

import (
	"context"
	"fmt"

	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/logger"
)

// Store reads and writes event log documents. One document per
// organisation, keyed by organisation number.
type Store struct {
	docs docstore.Store
	log  *logger.Logger
}

// NewStore creates an event log store on top of a document store.
func NewStore(docs docstore.Store, log *logger.Logger) *Store {
	return &Store{docs: docs, log: log}
}

type orgDocument struct {
	Organisations map[string]orgEvents `json:"organisations"`
}

type orgEvents struct {
	Events []Event `json:"events"`
}

// HasProcessed reports whether an event of the given type has already been
// recorded for the (organisation, report) pair.
func (s *Store) HasProcessed(ctx context.Context, orgNumber, reportID, eventType string) (bool, error) {
	var doc orgDocument
	err := s.docs.Get(ctx, docstore.CategoryEventLog, orgNumber, &doc)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, ev := range doc.Organisations[orgNumber].Events {
		if ev.ReportID == reportID && ev.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

// Append adds an event to the organisation's log. A write failure is
// returned to the caller so the triggering operation can be retried; the
// log must never silently miss events.
func (s *Store) Append(ctx context.Context, orgNumber string, ev Event) error {
	var doc orgDocument
	err := s.docs.Get(ctx, docstore.CategoryEventLog, orgNumber, &doc)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	if doc.Organisations == nil {
		doc.Organisations = make(map[string]orgEvents)
	}

	entry := doc.Organisations[orgNumber]
	entry.Events = append(entry.Events, ev)
	doc.Organisations[orgNumber] = entry

	if err := s.docs.Put(ctx, docstore.CategoryEventLog, orgNumber, doc); err != nil {
		s.log.StoreError("eventlog.Append", err)
		return err
	}

	s.log.Info("event recorded",
		"org_number", orgNumber,
		"report_id", ev.ReportID,
		"event_type", ev.Type,
	)
	return nil
}

// FindByInstance scans the event logs for an event of the given type that
// references the instance. Used by the webhook path, which only knows the
// instance id. Returns apperr.NotFound when no log mentions the instance.
func (s *Store) FindByInstance(ctx context.Context, instanceID, eventType string) (Event, error) {
	keys, err := s.docs.List(ctx, docstore.CategoryEventLog, "")
	if err != nil {
		return Event{}, err
	}

	for _, key := range keys {
		var doc orgDocument
		if err := s.docs.Get(ctx, docstore.CategoryEventLog, key, &doc); err != nil {
			return Event{}, err
		}
		for _, ev := range doc.Organisations[key].Events {
			if ev.InstanceID == instanceID && ev.Type == eventType {
				return ev, nil
			}
		}
	}

	return Event{}, apperr.NotFound(fmt.Sprintf("no %s event for instance %s", eventType, instanceID)).WithOp("eventlog.FindByInstance")
}
