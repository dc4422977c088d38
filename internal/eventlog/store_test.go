package eventlog

import (
	"context"
	"testing"

	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/logger"
)

func newTestStore() *Store {
	return NewStore(docstore.NewMemory(), logger.New("development"))
}

func TestAppendThenHasProcessed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	ok, err := store.HasProcessed(ctx, "310075728", "r-1", "initiell_skjema_instance_downloaded")
	if err != nil {
		t.Fatalf("has processed: %v", err)
	}
	if ok {
		t.Fatalf("empty log should report not processed")
	}

	err = store.Append(ctx, "310075728", Event{
		Type:       "initiell_skjema_instance_downloaded",
		ReportID:   "r-1",
		OrgNumber:  "310075728",
		InstanceID: "abc-123",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err = store.HasProcessed(ctx, "310075728", "r-1", "initiell_skjema_instance_downloaded")
	if err != nil || !ok {
		t.Fatalf("expected processed, got %v, %v", ok, err)
	}

	// Same report, different stage event type: not a duplicate.
	ok, err = store.HasProcessed(ctx, "310075728", "r-1", "oppstart_skjema_instance_downloaded")
	if err != nil || ok {
		t.Fatalf("other stage should not count as processed, got %v, %v", ok, err)
	}
}

func TestAppendPreservesExistingEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_ = store.Append(ctx, "310075728", Event{Type: "initiell_skjema_instance_created", ReportID: "r-1"})
	_ = store.Append(ctx, "310075728", Event{Type: "initiell_skjema_instance_downloaded", ReportID: "r-1"})

	for _, typ := range []string{"initiell_skjema_instance_created", "initiell_skjema_instance_downloaded"} {
		ok, err := store.HasProcessed(ctx, "310075728", "r-1", typ)
		if err != nil || !ok {
			t.Fatalf("%s: expected processed, got %v, %v", typ, ok, err)
		}
	}
}

func TestFindByInstance(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_ = store.Append(ctx, "310075728", Event{
		Type:       "initiell_skjema_instance_created",
		ReportID:   "r-1",
		OrgNumber:  "310075728",
		InstanceID: "abc-123",
		PartyID:    "51625403",
	})
	_ = store.Append(ctx, "923609016", Event{
		Type:       "initiell_skjema_instance_created",
		ReportID:   "r-2",
		OrgNumber:  "923609016",
		InstanceID: "def-456",
	})

	ev, err := store.FindByInstance(ctx, "def-456", "initiell_skjema_instance_created")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ev.ReportID != "r-2" || ev.OrgNumber != "923609016" {
		t.Fatalf("found wrong event %+v", ev)
	}

	_, err = store.FindByInstance(ctx, "ghi-789", "initiell_skjema_instance_created")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestShipmentRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	rec := ShipmentRecord{
		Type:       TypeNotificationSent,
		ReportID:   "r-1",
		OrgNumber:  "310075728",
		AppName:    "regvil-2025-initiell",
		ShipmentID: "ship-1",
		Recipient:  "kontakt@example.no",
		SendTime:   "2026-03-01T09:00:00.000000Z",
	}
	if err := store.RecordShipment(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}

	ok, err := store.HasShipmentRecord(ctx, rec.Key())
	if err != nil || !ok {
		t.Fatalf("expected record, got %v, %v", ok, err)
	}

	got, err := store.ListShipments(ctx, ShipmentPrefix("r-1", "regvil-2025-initiell", TypeNotificationSent))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ShipmentID != "ship-1" {
		t.Fatalf("unexpected records %+v", got)
	}

	other, err := store.ListShipments(ctx, ShipmentPrefix("r-1", "regvil-2025-oppstart", TypeNotificationSent))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no records for other app, got %+v", other)
	}
}
