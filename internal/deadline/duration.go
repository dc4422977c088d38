// Package deadline implements the date arithmetic behind instance
// visibility: ISO-8601 durations, the recurring evaluation anchors, and the
// per-stage visibility rules.
package deadline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"regvil_tracker_backend/platform/apperr"
)

// Duration is an ISO-8601 duration kept in calendar components so that
// month and year arithmetic stays calendar-aware instead of collapsing to
// a fixed number of hours.
type Duration struct {
	Negative bool
	Years    int
	Months   int
	Weeks    int
	Days     int
	Hours    int
	Minutes  int
	Seconds  float64
}

// ParseDuration parses an ISO-8601 duration such as "P1Y2M3DT4H5M6.5S",
// "P2W" or "-P14D".
func ParseDuration(s string) (Duration, error) {
	var d Duration
	rest := s

	if strings.HasPrefix(rest, "-") {
		d.Negative = true
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "+") {
		rest = rest[1:]
	}
	if !strings.HasPrefix(rest, "P") {
		return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
	}
	rest = rest[1:]
	if rest == "" {
		return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
	}

	inTime := false
	seen := false
	for rest != "" {
		if rest[0] == 'T' {
			if inTime {
				return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
			}
			inTime = true
			rest = rest[1:]
			continue
		}

		i := 0
		for i < len(rest) && (rest[i] >= '0' && rest[i] <= '9' || rest[i] == '.') {
			i++
		}
		if i == 0 || i == len(rest) {
			return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
		}
		numStr, unit := rest[:i], rest[i]
		rest = rest[i+1:]

		if unit == 'S' {
			sec, err := strconv.ParseFloat(numStr, 64)
			if err != nil || !inTime {
				return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
			}
			d.Seconds = sec
			seen = true
			continue
		}

		n, err := strconv.Atoi(numStr)
		if err != nil {
			return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
		}
		switch {
		case !inTime && unit == 'Y':
			d.Years = n
		case !inTime && unit == 'M':
			d.Months = n
		case !inTime && unit == 'W':
			d.Weeks = n
		case !inTime && unit == 'D':
			d.Days = n
		case inTime && unit == 'H':
			d.Hours = n
		case inTime && unit == 'M':
			d.Minutes = n
		default:
			return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
		}
		seen = true
	}

	if !seen {
		return Duration{}, apperr.Validation(fmt.Sprintf("invalid duration %q", s)).WithOp("deadline.ParseDuration")
	}
	return d, nil
}

// Negate flips the sign of the duration.
func (d Duration) Negate() Duration {
	d.Negative = !d.Negative
	return d
}

// AddTo applies the duration to t. Year and month components move through
// the calendar with the day-of-month clamped to the end of the target
// month, so adding a month and subtracting it again lands back on the
// original day whenever that day exists in both months.
func (d Duration) AddTo(t time.Time) time.Time {
	sign := 1
	if d.Negative {
		sign = -1
	}

	if months := d.Years*12 + d.Months; months != 0 {
		t = addMonthsClamped(t, sign*months)
	}
	if days := d.Weeks*7 + d.Days; days != 0 {
		t = t.AddDate(0, 0, sign*days)
	}

	clock := time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds*float64(time.Second))
	if clock != 0 {
		t = t.Add(time.Duration(sign) * clock)
	}
	return t
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	idx := int(month) - 1 + months
	year += idx / 12
	idx %= 12
	if idx < 0 {
		idx += 12
		year--
	}
	target := time.Month(idx + 1)
	if last := daysInMonth(year, target); day > last {
		day = last
	}
	hour, min, sec := t.Clock()
	return time.Date(year, target, day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddDuration applies an ISO-8601 duration string to a timestamp string
// and returns the result in the canonical wire format.
func AddDuration(ts, dur string) (string, error) {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return "", err
	}
	d, err := ParseDuration(dur)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(d.AddTo(t)), nil
}
