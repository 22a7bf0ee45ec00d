package domain

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a kline interval as named by the archive ("30m", "1h", ...).
type Interval string

func (i Interval) String() string {
	return string(i)
}

func (i Interval) Duration() time.Duration {
	return intervalToDuration[i]
}

func ParseInterval(s string) (Interval, error) {
	i := Interval(s)
	if _, ok := intervalToDuration[i]; !ok {
		return "", ErrInvalidInterval
	}
	return i, nil
}

var intervalToDuration = map[Interval]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"3m":  time.Minute * 3,
	"5m":  time.Minute * 5,
	"15m": time.Minute * 15,
	"30m": time.Minute * 30,
	"1h":  time.Hour,
	"2h":  time.Hour * 2,
	"4h":  time.Hour * 4,
	"6h":  time.Hour * 6,
	"8h":  time.Hour * 8,
	"12h": time.Hour * 12,
	"1d":  time.Hour * 24,
	"3d":  time.Hour * 24 * 3,
	"1w":  time.Hour * 24 * 7,
	"1mo": time.Hour * 24 * 30,
}
