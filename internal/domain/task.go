package domain

import (
	"errors"
	"time"
)

const DateLayout = time.DateOnly

var ErrInvalidDateRange = errors.New("invalid date range")

// FetchTask is one calendar date of archive data and where to get it.
type FetchTask struct {
	Date time.Time
	Name string
	URL  string
}

// Dates returns every calendar date in [start, end], inclusive, truncated to
// midnight UTC.
func Dates(start, end time.Time) ([]time.Time, error) {
	from := truncateDay(start)
	to := truncateDay(end)
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}

	dates := make([]time.Time, 0, DayCount(from, to))
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// DayCount is the inclusive number of calendar days between start and end.
func DayCount(start, end time.Time) int {
	days := int(truncateDay(end).Sub(truncateDay(start)).Hours()/24) + 1
	if days < 0 {
		return 0
	}
	return days
}

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// epochMicroThreshold separates millisecond from microsecond epochs. Any
// millisecond value above it would be past the year 33000.
const epochMicroThreshold = 1_000_000_000_000_000

// FromEpoch converts an archive epoch value to UTC time. Spot archives switched
// from milliseconds to microseconds, so both are accepted.
func FromEpoch(v int64) time.Time {
	if v >= epochMicroThreshold || v <= -epochMicroThreshold {
		return time.UnixMicro(v).UTC()
	}
	return time.UnixMilli(v).UTC()
}
