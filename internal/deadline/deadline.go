package deadline

import (
	"fmt"
	"time"

	"regvil_tracker_backend/internal/report"
	"regvil_tracker_backend/internal/workflow"
	"regvil_tracker_backend/platform/apperr"
)

const (
	dateLayout = "2006-01-02"
	wireLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// evalCutoff is the date before which a reported date is used as-is when
// no status report exists yet; from it onward dates snap to the recurring
// anchors.
var evalCutoff = time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)

// ParseTimestamp parses either a bare date (interpreted as UTC midnight)
// or an RFC 3339 timestamp with optional fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.Validation(fmt.Sprintf("unparseable timestamp %q", s)).WithOp("deadline.ParseTimestamp")
}

// FormatTimestamp renders t in the canonical wire format: UTC, microsecond
// precision, Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(wireLayout)
}

// NextDeadline returns the first yearly evaluation anchor (17 January or
// 17 August, UTC) strictly after the later anchor logic: a date before
// 17 January maps to 17 January of the same year, a date from 17 January
// up to 17 August maps to 17 August, and anything later rolls over to
// 17 January of the next year.
func NextDeadline(t time.Time) time.Time {
	year := t.Year()
	jan := time.Date(year, time.January, 17, 0, 0, 0, 0, time.UTC)
	aug := time.Date(year, time.August, 17, 0, 0, 0, 0, time.UTC)

	switch {
	case t.Before(jan):
		return jan
	case t.Before(aug):
		return aug
	default:
		return time.Date(year+1, time.January, 17, 0, 0, 0, 0, time.UTC)
	}
}

// NextEvalDate resolves a reported target date against the recurring
// anchors. Before any status report exists, dates earlier than the cutoff
// are trusted as-is and later ones snap to their next anchor. Once status
// reporting has started, the result is the earlier of the reported date
// and the next anchor from now.
func NextEvalDate(dateStr string, hasStatus bool, now time.Time) (time.Time, error) {
	given, err := ParseTimestamp(dateStr)
	if err != nil {
		return time.Time{}, err
	}

	if !hasStatus {
		if given.Before(evalCutoff) {
			return given, nil
		}
		return NextDeadline(given), nil
	}

	next := NextDeadline(now)
	if given.Before(next) {
		return given, nil
	}
	return next, nil
}

// VisibleFrom computes when the successor of the given stage should become
// visible, from the accumulated report data. The offset is the stage's
// ISO-8601 visibility offset applied when a reported start date has
// already passed.
func VisibleFrom(stage workflow.Stage, data report.ReportData, offset string, now time.Time) (string, error) {
	switch stage {
	case workflow.StageInitial:
		return AfterInitial(data, offset, now)
	case workflow.StageStartup:
		return AfterStartup(data, now)
	case workflow.StageStatus:
		return AfterStatus(data, now)
	case workflow.StageFinal:
		return AfterFinal(data, now)
	default:
		return "", apperr.Validation(fmt.Sprintf("unknown stage %q", stage)).WithOp("deadline.VisibleFrom")
	}
}

// AfterInitial derives the startup form's visibility from the initial
// report: a future start date is honoured, a past or missing one pushes
// visibility a short offset past today.
func AfterInitial(data report.ReportData, offset string, now time.Time) (string, error) {
	ini := data.Initial
	if ini == nil {
		return "", apperr.Validation("report has no initial section").WithOp("deadline.AfterInitial")
	}

	start := ini.DatoForventetOppstart
	if ini.ErTiltaketPaabegynt {
		start = ini.DatoPaabegynt
	}
	if start == "" {
		return AddDuration(FormatTimestamp(now), offset)
	}

	t, err := ParseTimestamp(start)
	if err != nil {
		return "", err
	}
	if t.Before(now) {
		return AddDuration(FormatTimestamp(now), offset)
	}
	return FormatTimestamp(t), nil
}

// AfterStartup derives the status form's visibility from the startup
// report. A still-future expected start date from the initial report is
// kept; otherwise the expected end date snaps to the recurring anchors.
func AfterStartup(data report.ReportData, now time.Time) (string, error) {
	su := data.Startup
	if su == nil {
		return "", apperr.Validation("report has no startup section").WithOp("deadline.AfterStartup")
	}

	if ini := data.Initial; ini != nil && !ini.ErTiltaketPaabegynt && ini.DatoForventetOppstart != "" {
		if t, err := ParseTimestamp(ini.DatoForventetOppstart); err == nil && !t.Before(now) {
			return FormatTimestamp(t), nil
		}
	}

	if su.ForventetSluttdato == "" {
		return FormatTimestamp(NextDeadline(now)), nil
	}
	t, err := NextEvalDate(su.ForventetSluttdato, data.Status != nil, now)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// AfterStatus derives the next form's visibility from a status report:
// finished work is followed up immediately, ongoing work at the next
// evaluation date.
func AfterStatus(data report.ReportData, now time.Time) (string, error) {
	st := data.Status
	if st == nil {
		return "", apperr.Validation("report has no status section").WithOp("deadline.AfterStatus")
	}
	if st.ErTiltaketAvsluttet {
		return FormatTimestamp(now), nil
	}

	anchor := st.ForventetSluttdato
	if anchor == "" && data.Startup != nil {
		anchor = data.Startup.ForventetSluttdato
	}
	if anchor == "" {
		return FormatTimestamp(NextDeadline(now)), nil
	}
	t, err := NextEvalDate(anchor, true, now)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// AfterFinal mirrors the status rule for the final report, used when a
// closed case has to be reopened.
func AfterFinal(data report.ReportData, now time.Time) (string, error) {
	fin := data.Final
	if fin == nil {
		return "", apperr.Validation("report has no final section").WithOp("deadline.AfterFinal")
	}
	if fin.DatoAvsluttet != "" {
		return FormatTimestamp(now), nil
	}
	return FormatTimestamp(NextDeadline(now)), nil
}
