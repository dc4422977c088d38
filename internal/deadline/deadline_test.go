package deadline

import (
	"testing"
	"time"

	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/platform/apperr"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2025-03-04")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2025, time.March, 4)) {
		t.Fatalf("bare date should parse to UTC midnight, got %v", got)
	}

	got, err = ParseTimestamp("2025-07-22T12:59:42.6342741Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Nanosecond() != 634274100 {
		t.Fatalf("fractional seconds lost: %v", got)
	}

	if _, err := ParseTimestamp("22.07.2025"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNextDeadlineAnchors(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{date(2025, time.January, 2), date(2025, time.January, 17)},
		{date(2025, time.January, 17), date(2025, time.August, 17)},
		{date(2025, time.March, 1), date(2025, time.August, 17)},
		{date(2025, time.August, 16), date(2025, time.August, 17)},
		{date(2025, time.August, 17), date(2026, time.January, 17)},
		{date(2025, time.December, 31), date(2026, time.January, 17)},
	}
	for _, tt := range tests {
		if got := NextDeadline(tt.in); !got.Equal(tt.want) {
			t.Fatalf("NextDeadline(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNextEvalDateBeforeStatusReporting(t *testing.T) {
	now := date(2025, time.June, 1)

	// Dates before the cutoff are trusted as-is.
	got, err := NextEvalDate("2025-10-01", false, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2025, time.October, 1)) {
		t.Fatalf("expected given date back, got %v", got)
	}

	// From the cutoff on they snap to the next anchor.
	got, err = NextEvalDate("2026-03-01", false, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2026, time.August, 17)) {
		t.Fatalf("expected anchor, got %v", got)
	}
}

func TestNextEvalDateWithStatusReporting(t *testing.T) {
	now := date(2026, time.February, 1)

	// Reported date beyond the next anchor is capped at the anchor.
	got, err := NextEvalDate("2027-05-01", true, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2026, time.August, 17)) {
		t.Fatalf("expected anchor cap, got %v", got)
	}

	// Reported date before the next anchor wins.
	got, err = NextEvalDate("2026-04-01", true, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(date(2026, time.April, 1)) {
		t.Fatalf("expected given date, got %v", got)
	}
}

func TestAfterInitialFutureStartDateKept(t *testing.T) {
	now := date(2026, time.March, 1)
	data := report.ReportData{
		Initial: &report.InitialSection{
			ErTiltaketPaabegynt:   false,
			DatoForventetOppstart: "2026-05-01",
		},
	}
	got, err := AfterInitial(data, "P7D", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-05-01T00:00:00.000000Z" {
		t.Fatalf("got %s", got)
	}
}

func TestAfterInitialPastStartDateOffset(t *testing.T) {
	now := date(2026, time.March, 1)
	data := report.ReportData{
		Initial: &report.InitialSection{
			ErTiltaketPaabegynt: true,
			DatoPaabegynt:       "2025-11-20",
		},
	}
	got, err := AfterInitial(data, "P7D", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-03-08T00:00:00.000000Z" {
		t.Fatalf("got %s", got)
	}
}

func TestAfterInitialMissingSection(t *testing.T) {
	if _, err := AfterInitial(report.ReportData{}, "P7D", date(2026, time.March, 1)); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAfterStatusFinishedWorkIsImmediate(t *testing.T) {
	now := date(2026, time.March, 1)
	data := report.ReportData{
		Status: &report.StatusSection{ErTiltaketAvsluttet: true},
	}
	got, err := AfterStatus(data, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-03-01T00:00:00.000000Z" {
		t.Fatalf("got %s", got)
	}
}

func TestAfterStatusOngoingWorkSnapsToAnchor(t *testing.T) {
	now := date(2026, time.March, 1)
	data := report.ReportData{
		Startup: &report.StartupSection{ForventetSluttdato: "2027-06-01"},
		Status:  &report.StatusSection{ErTiltaketAvsluttet: false},
	}
	got, err := AfterStatus(data, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-08-17T00:00:00.000000Z" {
		t.Fatalf("got %s", got)
	}
}
