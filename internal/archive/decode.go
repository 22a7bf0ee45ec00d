package archive

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/domain"
)

var ErrMalformedArchive = errors.New("malformed archive")

// klineColumns is the fixed width of an archive kline row. The last column is
// unused and discarded.
const klineColumns = 12

type ParseError struct {
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Decode unpacks a daily archive and parses its klines, tagging each row with
// date. Decode errors are never worth retrying.
func Decode(data []byte, date time.Time) (domain.RawDataset, error) {
	f, err := Unpack(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseKlines(f, date)
}

// Unpack opens the first file in a zip archive.
func Unpack(data []byte) (io.ReadCloser, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedArchive, err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open %s: %w", ErrMalformedArchive, f.Name, err)
		}
		return rc, nil
	}

	return nil, fmt.Errorf("%w: no files in archive", ErrMalformedArchive)
}

// ParseKlines reads headerless 12-column kline CSV. A header row, if present,
// is skipped.
func ParseKlines(r io.Reader, date time.Time) (domain.RawDataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = klineColumns
	cr.ReuseRecord = true

	rows := domain.RawDataset{}
	for line := 1; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedArchive, err)
		}

		if line == 1 && !isInteger(record[0]) {
			continue
		}

		row, err := parseKline(record, line)
		if err != nil {
			return nil, err
		}
		row.Date = date
		rows = append(rows, row)
	}

	return rows, nil
}

func parseKline(record []string, line int) (domain.CandleRow, error) {
	var (
		row domain.CandleRow
		err error
	)

	epoch := func(col int) time.Time {
		if err != nil {
			return time.Time{}
		}
		var v int64
		v, err = strconv.ParseInt(strings.TrimSpace(record[col]), 10, 64)
		if err != nil {
			err = &ParseError{Line: line, Column: col, Err: err}
		}
		return domain.FromEpoch(v)
	}
	float := func(col int) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			err = &ParseError{Line: line, Column: col, Err: err}
		}
		return v
	}
	integer := func(col int) int64 {
		if err != nil {
			return 0
		}
		var v int64
		v, err = strconv.ParseInt(strings.TrimSpace(record[col]), 10, 64)
		if err != nil {
			err = &ParseError{Line: line, Column: col, Err: err}
		}
		return v
	}

	row.OpenTime = epoch(0)
	row.Open = float(1)
	row.High = float(2)
	row.Low = float(3)
	row.Close = float(4)
	row.Volume = float(5)
	row.CloseTime = epoch(6)
	row.QuoteVolume = float(7)
	row.Trades = integer(8)
	row.TakerBuyBaseVolume = float(9)
	row.TakerBuyQuoteVolume = float(10)

	return row, err
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}
