package deadline

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want Duration
	}{
		{"P1M", Duration{Months: 1}},
		{"P2W", Duration{Weeks: 2}},
		{"P14D", Duration{Days: 14}},
		{"-P14D", Duration{Negative: true, Days: 14}},
		{"P1Y2M3DT4H5M6S", Duration{Years: 1, Months: 2, Days: 3, Hours: 4, Minutes: 5, Seconds: 6}},
		{"PT30M", Duration{Minutes: 30}},
		{"PT1.5S", Duration{Seconds: 1.5}},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "P", "1M", "P1X", "PT", "PS", "P-1D"} {
		if _, err := ParseDuration(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestAddDurationMicrosecondPrecision(t *testing.T) {
	got, err := AddDuration("2025-07-22T12:59:42.6342741Z", "P1M")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "2025-08-22T12:59:42.634274Z"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestAddDurationBareDate(t *testing.T) {
	got, err := AddDuration("2025-01-03", "P2W")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2025-01-17T00:00:00.000000Z" {
		t.Fatalf("got %s", got)
	}
}

func TestMonthAdditionClampsToEndOfMonth(t *testing.T) {
	jan31 := time.Date(2025, time.January, 31, 10, 0, 0, 0, time.UTC)
	d := Duration{Months: 1}
	got := d.AddTo(jan31)
	if got.Month() != time.February || got.Day() != 28 {
		t.Fatalf("expected 28 Feb, got %v", got)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	start := time.Date(2025, time.July, 22, 12, 59, 42, 634274000, time.UTC)
	for _, spec := range []string{"P1M", "P3M", "P1Y", "P14D", "P2W", "PT36H"} {
		d, err := ParseDuration(spec)
		if err != nil {
			t.Fatalf("%s: %v", spec, err)
		}
		back := d.Negate().AddTo(d.AddTo(start))
		if !back.Equal(start) {
			t.Fatalf("%s: round trip moved %v to %v", spec, start, back)
		}
	}
}

func TestNegateIsInvolution(t *testing.T) {
	d := Duration{Months: 2, Days: 5}
	if d.Negate().Negate() != d {
		t.Fatalf("double negation should restore the duration")
	}
}
