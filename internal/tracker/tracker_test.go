package tracker

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
	"regvil_tracker_backend/platform/apperr"
	"regvil_tracker_backend/platform/logger"
)

type createdCall struct {
	app  string
	desc altinn.InstanceDescriptor
}

type fakeAPI struct {
	instances map[string]report.Instance
	data      map[string]json.RawMessage
	created   []createdCall
	tags      []string
	nextGUID  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		instances: make(map[string]report.Instance),
		data:      make(map[string]json.RawMessage),
	}
}

func (f *fakeAPI) GetInstance(_ context.Context, _, partyID, instanceGUID string) (report.Instance, error) {
	inst, ok := f.instances[partyID+"/"+instanceGUID]
	if !ok {
		return report.Instance{}, apperr.NotFound("instance not found")
	}
	return inst, nil
}

func (f *fakeAPI) GetInstanceData(_ context.Context, _, _, _, dataID string) (json.RawMessage, error) {
	raw, ok := f.data[dataID]
	if !ok {
		return nil, apperr.NotFound("data element not found")
	}
	return raw, nil
}

func (f *fakeAPI) CreateInstance(_ context.Context, app string, desc altinn.InstanceDescriptor, _ any) (report.Instance, error) {
	f.created = append(f.created, createdCall{app: app, desc: desc})
	f.nextGUID++
	id := fmt.Sprintf("900/guid-%d", f.nextGUID)
	inst := report.Instance{
		ID:      id,
		Created: "2026-03-01T10:00:00.000000Z",
		InstanceOwner: report.Owner{
			PartyID:            "900",
			OrganisationNumber: desc.InstanceOwner.OrganisationNumber,
		},
		Data: []report.DataElement{
			{ID: fmt.Sprintf("data-%d", f.nextGUID), DataType: "DataModel", CreatedBy: "svc", LastChangedBy: "svc"},
		},
	}
	f.instances[id] = inst
	return inst, nil
}

func (f *fakeAPI) TagInstanceData(_ context.Context, _, _, _, _, tag string) error {
	f.tags = append(f.tags, tag)
	return nil
}

func reportJSON(t *testing.T) json.RawMessage {
	t.Helper()
	data := report.ReportData{
		Prefill: &report.Prefill{
			ReportID:            "InitiellSkjemaLevert",
			AnsvarligVirksomhet: report.Unit{Navn: "Testvirksomhet AS", Organisasjonsnummer: "310075728"},
			Kontaktperson:       report.Contact{Navn: "Kari", EPostadresse: "kari@example.no"},
		},
		Initial: &report.InitialSection{
			ErTiltaketPaabegynt:   false,
			DatoForventetOppstart: "2030-05-01",
		},
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

type fixture struct {
	tracker *Tracker
	api     *fakeAPI
	events  *eventlog.Store
	graph   *workflow.Graph
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	api := newFakeAPI()
	log := logger.New("development")
	events := eventlog.NewStore(docstore.NewMemory(), log)
	graph := workflow.Default()
	tr := New(api, events, docstore.NewMemory(), graph, log)
	tr.now = func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) }
	return fixture{tracker: tr, api: api, events: events, graph: graph}
}

// seedSubmitted registers a created event and a submitted, answered
// instance for the initial stage.
func (fx fixture) seedSubmitted(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	err := fx.events.Append(ctx, "310075728", eventlog.Event{
		Type:       "initiell_skjema_instance_created",
		ReportID:   "InitiellSkjemaLevert",
		OrgNumber:  "310075728",
		OrgName:    "Testvirksomhet AS",
		PartyID:    "51625403",
		InstanceID: "abc-123",
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	fx.api.instances["51625403/abc-123"] = report.Instance{
		ID: "51625403/abc-123",
		InstanceOwner: report.Owner{
			PartyID:            "51625403",
			OrganisationNumber: "310075728",
		},
		Data: []report.DataElement{{
			ID:            "data-1",
			DataType:      "DataModel",
			CreatedBy:     "svc",
			LastChangedBy: "user-17",
			Tags:          []string{"InitiellSkjemaLevert"},
		}},
	}
	fx.api.data["data-1"] = reportJSON(t)
}

func TestProcessCompletedDownloadsOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedSubmitted(t)

	res, err := fx.tracker.ProcessCompleted(ctx, "51625403", "abc-123", "regvil-2025-initiell")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if res.Outcome != OutcomeProcessed {
		t.Fatalf("first call outcome = %s (%s)", res.Outcome, res.SkipReason)
	}
	if res.ReportID != "InitiellSkjemaLevert" || res.OrgNumber != "310075728" {
		t.Fatalf("result context wrong: %+v", res)
	}

	ok, err := fx.events.HasProcessed(ctx, "310075728", "InitiellSkjemaLevert", "initiell_skjema_instance_downloaded")
	if err != nil || !ok {
		t.Fatalf("download event missing: %v, %v", ok, err)
	}

	// Redelivered signal: must be a silent no-op, not a second event.
	res2, err := fx.tracker.ProcessCompleted(ctx, "51625403", "abc-123", "regvil-2025-initiell")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if res2.Outcome != OutcomeSkipped || res2.SkipReason != "already downloaded" {
		t.Fatalf("second call = %s (%s)", res2.Outcome, res2.SkipReason)
	}
}

func TestProcessCompletedSkipsUnsubmittedForm(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedSubmitted(t)

	inst := fx.api.instances["51625403/abc-123"]
	inst.Data[0].Tags = nil
	fx.api.instances["51625403/abc-123"] = inst

	res, err := fx.tracker.ProcessCompleted(ctx, "51625403", "abc-123", "regvil-2025-initiell")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("expected skip, got %s", res.Outcome)
	}
}

func TestProcessCompletedSkipsUnansweredForm(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedSubmitted(t)

	inst := fx.api.instances["51625403/abc-123"]
	inst.Data[0].LastChangedBy = inst.Data[0].CreatedBy
	fx.api.instances["51625403/abc-123"] = inst

	res, err := fx.tracker.ProcessCompleted(ctx, "51625403", "abc-123", "regvil-2025-initiell")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("expected skip, got %s", res.Outcome)
	}
}

func TestProcessCompletedUnknownAppIsError(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.tracker.ProcessCompleted(context.Background(), "1", "2", "regvil-2025-unknown")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessCompletedUnknownInstanceIsError(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.tracker.ProcessCompleted(context.Background(), "51625403", "no-such", "regvil-2025-initiell")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found for missing creation event, got %v", err)
	}
}

func TestProcessCompletedOrgMismatchIsConsistencyError(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedSubmitted(t)

	inst := fx.api.instances["51625403/abc-123"]
	inst.InstanceOwner.OrganisationNumber = "923609016"
	fx.api.instances["51625403/abc-123"] = inst

	_, err := fx.tracker.ProcessCompleted(ctx, "51625403", "abc-123", "regvil-2025-initiell")
	if !apperr.Is(err, apperr.KindConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestAdvanceStageCreatesSuccessor(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.seedSubmitted(t)

	res, err := fx.tracker.ProcessCompleted(ctx, "51625403", "abc-123", "regvil-2025-initiell")
	if err != nil || res.Outcome != OutcomeProcessed {
		t.Fatalf("process: %v (%+v)", err, res)
	}

	adv, err := fx.tracker.AdvanceStage(ctx, res)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if adv.Outcome != OutcomeProcessed || adv.Stage.Stage != workflow.StageStartup {
		t.Fatalf("advance result: %+v", adv)
	}

	if len(fx.api.created) != 1 || fx.api.created[0].app != "regvil-2025-oppstart" {
		t.Fatalf("created calls: %+v", fx.api.created)
	}
	// The reported future start date should drive the visibility.
	if fx.api.created[0].desc.VisibleAfter != "2030-05-01T00:00:00.000000Z" {
		t.Fatalf("visible after = %s", fx.api.created[0].desc.VisibleAfter)
	}

	ok, err := fx.events.HasProcessed(ctx, "310075728", "InitiellSkjemaLevert", "oppstart_skjema_instance_created")
	if err != nil || !ok {
		t.Fatalf("created event missing: %v, %v", ok, err)
	}

	// Redelivery after advancing must not create a second successor.
	adv2, err := fx.tracker.AdvanceStage(ctx, res)
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}
	if adv2.Outcome != OutcomeSkipped {
		t.Fatalf("second advance = %s", adv2.Outcome)
	}
	if len(fx.api.created) != 1 {
		t.Fatalf("successor created twice")
	}
}

func TestAdvanceStageTerminal(t *testing.T) {
	fx := newFixture(t)
	def, _ := fx.graph.Definition(workflow.StageFinal)

	res, err := fx.tracker.AdvanceStage(context.Background(), Result{
		Outcome:   OutcomeProcessed,
		Stage:     def,
		ReportID:  "r-1",
		OrgNumber: "310075728",
	})
	if err != nil {
		t.Fatalf("terminal advance should not error: %v", err)
	}
	if res.Outcome != OutcomeTerminal {
		t.Fatalf("expected terminal outcome, got %s", res.Outcome)
	}
}

func TestSeedInitialIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	rec := report.FlatRecord{
		ReportID:         "7f6f9ed5-53e8-4e8f-95b2-c0a1c9a4d8a3",
		CompanyOrgNumber: "310075728",
		CompanyName:      "Testvirksomhet AS",
		ContactEmail:     "kari@example.no",
	}

	res, err := fx.tracker.SeedInitial(ctx, rec, "Testvirksomhet AS")
	if err != nil || res.Outcome != OutcomeProcessed {
		t.Fatalf("seed: %v (%+v)", err, res)
	}
	if len(fx.api.created) != 1 {
		t.Fatalf("expected one created instance")
	}

	res2, err := fx.tracker.SeedInitial(ctx, rec, "Testvirksomhet AS")
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if res2.Outcome != OutcomeSkipped || len(fx.api.created) != 1 {
		t.Fatalf("second seed should skip, got %s with %d creates", res2.Outcome, len(fx.api.created))
	}
}
