// internal/domain/interval.go
package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sosodev/duration"
)

// Interval is a parsed ISO-8601 duration such as "P1D" or "PT1H30M".
// Calendar units are applied with time.AddDate, the clock part as a time.Duration.
type Interval struct {
	Years  int
	Months int
	Days   int
	Clock  time.Duration
}

// ParseInterval parses an ISO-8601 duration string. Years, months, weeks and days
// must be whole numbers; weeks are folded into days.
func ParseInterval(spec string) (Interval, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Interval{}, errors.Wrap(ErrInvalidIntervalSpec, "empty interval")
	}
	if strings.HasPrefix(s, "-") {
		return Interval{}, errors.Wrapf(ErrInvalidIntervalSpec, "negative interval %q", spec)
	}

	d, err := duration.Parse(s)
	if err != nil {
		return Interval{}, errors.Wrapf(ErrInvalidIntervalSpec, "%q: %v", spec, err)
	}

	if d.Years > maxCalendarUnit || d.Months > maxCalendarUnit || d.Weeks*7+d.Days > maxCalendarUnit {
		return Interval{}, errors.Wrapf(ErrInvalidIntervalSpec, "%q: calendar part out of range", spec)
	}
	years, ok1 := whole(d.Years)
	months, ok2 := whole(d.Months)
	weeks, ok3 := whole(d.Weeks)
	days, ok4 := whole(d.Days)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Interval{}, errors.Wrapf(ErrInvalidIntervalSpec, "%q: calendar units must be whole numbers", spec)
	}

	if d.Hours < 0 || d.Minutes < 0 || d.Seconds < 0 {
		return Interval{}, errors.Wrapf(ErrInvalidIntervalSpec, "negative interval %q", spec)
	}
	if d.Hours*3600+d.Minutes*60+d.Seconds > maxClockSeconds {
		return Interval{}, errors.Wrapf(ErrInvalidIntervalSpec, "%q: time part out of range", spec)
	}
	clock := time.Duration(d.Hours*float64(time.Hour)) +
		time.Duration(d.Minutes*float64(time.Minute)) +
		time.Duration(d.Seconds*float64(time.Second))

	return Interval{
		Years:  years,
		Months: months,
		Days:   weeks*7 + days,
		Clock:  clock,
	}, nil
}

const (
	// maxCalendarUnit keeps time.AddDate arithmetic far from int overflow.
	maxCalendarUnit = 1_000_000
	// maxClockSeconds stays just below the largest time.Duration.
	maxClockSeconds = math.MaxInt64/float64(time.Second) - 1
)

func whole(f float64) (int, bool) {
	if f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// IsZero reports whether the interval has no length.
func (iv Interval) IsZero() bool {
	return iv.Years == 0 && iv.Months == 0 && iv.Days == 0 && iv.Clock == 0
}

// AddTo returns t advanced by the interval.
func (iv Interval) AddTo(t time.Time) time.Time {
	return t.AddDate(iv.Years, iv.Months, iv.Days).Add(iv.Clock)
}

// String formats the interval as a canonical ISO-8601 duration.
func (iv Interval) String() string {
	if iv.IsZero() {
		return "PT0S"
	}

	var b strings.Builder
	b.WriteByte('P')
	writeUnit(&b, int64(iv.Years), 'Y')
	writeUnit(&b, int64(iv.Months), 'M')
	writeUnit(&b, int64(iv.Days), 'D')

	if iv.Clock > 0 {
		b.WriteByte('T')
		rest := iv.Clock
		hours := rest / time.Hour
		rest -= hours * time.Hour
		minutes := rest / time.Minute
		rest -= minutes * time.Minute
		writeUnit(&b, int64(hours), 'H')
		writeUnit(&b, int64(minutes), 'M')
		if rest > 0 {
			b.WriteString(strconv.FormatFloat(rest.Seconds(), 'f', -1, 64))
			b.WriteByte('S')
		}
	}
	return b.String()
}

func writeUnit(b *strings.Builder, n int64, unit byte) {
	if n == 0 {
		return
	}
	b.WriteString(strconv.FormatInt(n, 10))
	b.WriteByte(unit)
}
