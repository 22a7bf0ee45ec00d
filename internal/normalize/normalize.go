// Package normalize reduces raw kline tables to the canonical six-column,
// timestamp-indexed schema.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/domain"
)

var (
	ErrMissingColumn    = errors.New("missing column")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

type CellError struct {
	Row    int
	Column string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// columnAliases maps raw column names onto canonical ones. Canonical names map
// to themselves so an already normalized table is accepted unchanged.
var columnAliases = map[string]string{
	domain.ColTradingDatetime: domain.ColTimestamp,
	domain.ColOpenPrice:       domain.ColOpen,
	domain.ColHighPrice:       domain.ColHigh,
	domain.ColLowPrice:        domain.ColLow,
	domain.ColClosePrice:      domain.ColClose,
	domain.ColTimestamp:       domain.ColTimestamp,
	domain.ColOpen:            domain.ColOpen,
	domain.ColHigh:            domain.ColHigh,
	domain.ColLow:             domain.ColLow,
	domain.ColClose:           domain.ColClose,
	domain.ColVolume:          domain.ColVolume,
	domain.ColCloseTime:       domain.ColCloseTime,
}

var requiredColumns = []string{
	domain.ColTimestamp,
	domain.ColOpen,
	domain.ColHigh,
	domain.ColLow,
	domain.ColClose,
	domain.ColVolume,
}

// Normalize converts a table in either the raw or the canonical schema into
// candles for asset, sorted ascending by timestamp. Columns other than the
// six canonical ones are dropped; close_time is still coerced when present.
func Normalize(asset string, header []string, records [][]string) ([]domain.Candle, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		if canonical, ok := columnAliases[strings.TrimSpace(name)]; ok {
			idx[canonical] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	closeTimeIdx, hasCloseTime := idx[domain.ColCloseTime]

	candles := make([]domain.Candle, 0, len(records))
	for i, record := range records {
		row := i + 1
		cell := func(col string) (string, error) {
			j := idx[col]
			if j >= len(record) {
				return "", &CellError{Row: row, Column: col, Err: ErrMissingColumn}
			}
			return record[j], nil
		}

		v, err := cell(domain.ColTimestamp)
		if err != nil {
			return nil, err
		}
		ts, err := ParseTimestamp(v)
		if err != nil {
			return nil, &CellError{Row: row, Column: domain.ColTimestamp, Err: err}
		}

		if hasCloseTime && closeTimeIdx < len(record) {
			if _, err := ParseTimestamp(record[closeTimeIdx]); err != nil {
				return nil, &CellError{Row: row, Column: domain.ColCloseTime, Err: err}
			}
		}

		var prices [5]float64
		for k, col := range requiredColumns[1:] {
			v, err := cell(col)
			if err != nil {
				return nil, err
			}
			prices[k], err = strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, &CellError{Row: row, Column: col, Err: err}
			}
		}

		candles = append(candles, domain.Candle{
			Timestamp: ts,
			AssetName: asset,
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    prices[4],
		})
	}

	Sort(candles)
	return candles, nil
}

// Sort orders candles by timestamp, keeping the input order of equal
// timestamps.
func Sort(candles []domain.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

var timestampLayouts = []string{
	domain.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

// ParseTimestamp accepts an integer epoch (milliseconds, or microseconds for
// large values) or a date-time string. Strings without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return domain.FromEpoch(v), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// Records renders candles in CanonicalHeader column order.
func Records(candles []domain.Candle) [][]string {
	records := make([][]string, 0, len(candles))
	for _, c := range candles {
		records = append(records, []string{
			c.Timestamp.Format(domain.TimestampLayout),
			c.AssetName,
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
		})
	}
	return records
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
