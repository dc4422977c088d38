package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"regvil_tracker_backend/internal/altinn"
	"regvil_tracker_backend/internal/docstore"
	"regvil_tracker_backend/internal/eventlog"
	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/logger"
)

var testNow = time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)

type fakeSweepAPI struct {
	byApp map[string][]report.Instance
	data  map[string]json.RawMessage
}

func (f *fakeSweepAPI) ListStoredInstances(_ context.Context, app string) ([]report.Instance, error) {
	return f.byApp[app], nil
}

func (f *fakeSweepAPI) GetInstanceData(_ context.Context, _, _, _, dataID string) (json.RawMessage, error) {
	raw, ok := f.data[dataID]
	if !ok {
		return nil, fmt.Errorf("no data for %s", dataID)
	}
	return raw, nil
}

type fakeNotifier struct {
	sent     []altinn.SendParams
	statuses map[string]altinn.ShipmentStatus
	nextID   int
}

func (f *fakeNotifier) SendNotification(_ context.Context, p altinn.SendParams) (altinn.Shipment, error) {
	f.sent = append(f.sent, p)
	f.nextID++
	return altinn.Shipment{
		ID:        fmt.Sprintf("ship-%d", f.nextID),
		SendTime:  p.SendTime,
		Recipient: p.Recipient,
	}, nil
}

func (f *fakeNotifier) GetShipmentStatus(_ context.Context, shipmentID string) (altinn.ShipmentStatus, error) {
	return f.statuses[shipmentID], nil
}

func openInstance(visibleAfter string) report.Instance {
	return report.Instance{
		ID:           "51625403/abc-123",
		VisibleAfter: visibleAfter,
		InstanceOwner: report.Owner{
			PartyID:            "51625403",
			OrganisationNumber: "310075728",
			Party:              report.Party{Name: "Testvirksomhet AS"},
		},
		Data: []report.DataElement{{
			ID:            "data-1",
			DataType:      "DataModel",
			CreatedBy:     "svc",
			LastChangedBy: "svc",
			Tags:          []string{"InitiellSkjemaLevert"},
		}},
	}
}

func payload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(report.ReportData{
		Prefill: &report.Prefill{
			ReportID:      "r-1",
			Kontaktperson: report.Contact{EPostadresse: "kari@example.no"},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func newSweepFixture(t *testing.T, instances []report.Instance) (*Sweep, *fakeNotifier, *eventlog.Store) {
	t.Helper()
	api := &fakeSweepAPI{
		byApp: map[string][]report.Instance{"regvil-2025-initiell": instances},
		data:  map[string]json.RawMessage{"data-1": payload(t)},
	}
	notify := &fakeNotifier{statuses: make(map[string]altinn.ShipmentStatus)}
	ships := eventlog.NewStore(docstore.NewMemory(), logger.New("development"))

	s := New(api, notify, ships, workflow.Default(), 14*24*time.Hour, logger.New("development"))
	s.now = func() time.Time { return testNow }
	return s, notify, ships
}

func TestSweepRemindsOverdueInstanceOnce(t *testing.T) {
	ctx := context.Background()
	s, notify, _ := newSweepFixture(t, []report.Instance{openInstance("2026-02-01T00:00:00.000000Z")})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(notify.sent) != 1 {
		t.Fatalf("expected one reminder, got %d", len(notify.sent))
	}
	if notify.sent[0].Recipient != "kari@example.no" {
		t.Fatalf("reminder went to %s", notify.sent[0].Recipient)
	}
	if notify.sent[0].SendersReference != "r-1" {
		t.Fatalf("senders reference = %s", notify.sent[0].SendersReference)
	}

	// A second pass inside the grace window stays silent.
	if err := s.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(notify.sent) != 1 {
		t.Fatalf("second pass re-notified: %d reminders", len(notify.sent))
	}
}

func TestSweepSkipRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*report.Instance)
	}{
		{"within grace of visibility", func(i *report.Instance) { i.VisibleAfter = "2026-03-10T00:00:00.000000Z" }},
		{"not yet visible", func(i *report.Instance) { i.VisibleAfter = "2026-06-01T00:00:00.000000Z" }},
		{"answered", func(i *report.Instance) { i.Data[0].LastChangedBy = "user-17" }},
		{"untagged", func(i *report.Instance) { i.Data[0].Tags = nil }},
		{"soft deleted", func(i *report.Instance) { i.Status.IsSoftDeleted = true }},
		{"hard deleted", func(i *report.Instance) { i.Status.IsHardDeleted = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := openInstance("2026-02-01T00:00:00.000000Z")
			tt.mutate(&inst)
			s, notify, _ := newSweepFixture(t, []report.Instance{inst})

			if err := s.Run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}
			if len(notify.sent) != 0 {
				t.Fatalf("expected no reminder, got %d", len(notify.sent))
			}
		})
	}
}

func TestPollDeliveriesRecordsCompletedShipment(t *testing.T) {
	ctx := context.Background()
	s, notify, ships := newSweepFixture(t, nil)

	sent := eventlog.ShipmentRecord{
		Type:       eventlog.TypeNotificationSent,
		ReportID:   "r-1",
		OrgNumber:  "310075728",
		AppName:    "regvil-2025-initiell",
		ShipmentID: "ship-1",
		Recipient:  "kari@example.no",
		SendTime:   "2026-03-19T09:00:00.000000Z",
	}
	if err := ships.RecordShipment(ctx, sent); err != nil {
		t.Fatalf("record: %v", err)
	}
	notify.statuses["ship-1"] = altinn.ShipmentStatus{
		Status: altinn.StatusOrderCompleted,
		Recipients: []altinn.RecipientStatus{
			{Destination: "kari@example.no", Status: altinn.StatusEmailDelivered},
		},
	}

	if err := s.PollDeliveries(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	received := sent
	received.Type = eventlog.TypeNotificationReceived
	ok, err := ships.HasShipmentRecord(ctx, received.Key())
	if err != nil || !ok {
		t.Fatalf("received record missing: %v, %v", ok, err)
	}

	got, err := ships.ListShipments(ctx, eventlog.ShipmentPrefix("r-1", "regvil-2025-initiell", eventlog.TypeNotificationReceived))
	if err != nil || len(got) != 1 {
		t.Fatalf("list received: %v, %+v", err, got)
	}
	if got[0].Status != altinn.StatusEmailDelivered {
		t.Fatalf("received status = %s", got[0].Status)
	}
}

func TestPollDeliveriesIgnoresPendingShipments(t *testing.T) {
	ctx := context.Background()
	s, notify, ships := newSweepFixture(t, nil)

	sent := eventlog.ShipmentRecord{
		Type:       eventlog.TypeNotificationSent,
		ReportID:   "r-1",
		AppName:    "regvil-2025-initiell",
		ShipmentID: "ship-9",
	}
	_ = ships.RecordShipment(ctx, sent)
	notify.statuses["ship-9"] = altinn.ShipmentStatus{Status: "Order_Processing"}

	if err := s.PollDeliveries(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	received := sent
	received.Type = eventlog.TypeNotificationReceived
	ok, _ := ships.HasShipmentRecord(ctx, received.Key())
	if ok {
		t.Fatalf("pending shipment should not be recorded as received")
	}
}
