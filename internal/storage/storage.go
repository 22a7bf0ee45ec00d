package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/domain"
	"github.com/0xc0d3d00d/klinearchive/internal/normalize"
	"github.com/spf13/afero"
)

var ErrEmptyTable = errors.New("empty table")

// data
// - raw
//   - BTCUSDT_raw.csv
// - processed
//   - BTCUSDT_Preprocessed.csv
// - logs
//   - BTCUSDT_data_extraction_20241206_101500.log

type Store struct {
	fs           afero.Fs
	rawDir       string
	processedDir string
	logDir       string
}

func NewStore(fs afero.Fs, rootDir string) (*Store, error) {
	s := &Store{
		fs:           fs,
		rawDir:       path.Join(rootDir, "raw"),
		processedDir: path.Join(rootDir, "processed"),
		logDir:       path.Join(rootDir, "logs"),
	}

	for _, dir := range []string{s.rawDir, s.processedDir, s.logDir} {
		exists, err := afero.DirExists(fs, dir)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return s, nil
}

func (s *Store) RawPath(symbol string) string {
	return path.Join(s.rawDir, symbol+"_raw.csv")
}

func (s *Store) ProcessedPath(symbol string) string {
	return path.Join(s.processedDir, symbol+"_Preprocessed.csv")
}

func (s *Store) LogPath(symbol string, started time.Time) string {
	return path.Join(s.logDir, fmt.Sprintf("%s_data_extraction_%s.log", symbol, started.Format("20060102_150405")))
}

// WriteRaw writes rows in raw schema order with no index column.
func (s *Store) WriteRaw(ctx context.Context, symbol string, rows domain.RawDataset) (string, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, rawRecord(r))
	}

	filename := s.RawPath(symbol)
	if err := s.writeTable(filename, domain.RawHeader, records); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "data saved", "path", filename, "rows", len(rows))
	return filename, nil
}

// WriteCandles writes the canonical, timestamp-indexed table.
func (s *Store) WriteCandles(ctx context.Context, symbol string, candles []domain.Candle) (string, error) {
	filename := s.ProcessedPath(symbol)
	if err := s.writeTable(filename, domain.CanonicalHeader, normalize.Records(candles)); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "preprocessed data saved", "path", filename, "rows", len(candles), "columns", len(domain.CanonicalHeader)-1)
	return filename, nil
}

// ReadTable loads a CSV file written by this store, returning its header and
// records.
func (s *Store) ReadTable(ctx context.Context, filename string) ([]string, [][]string, error) {
	slog.DebugContext(ctx, "read table", "path", filename)
	f, err := s.fs.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: %s", ErrEmptyTable, filename)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header of %s: %w", filename, err)
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	return header, records, nil
}

func (s *Store) writeTable(filename string, header []string, records [][]string) (err error) {
	tmp := filename + ".tmp"
	defer func() {
		if err != nil {
			_ = s.fs.Remove(tmp)
		}
	}()

	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := s.fs.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filename, err)
	}
	return nil
}

func rawRecord(r domain.CandleRow) []string {
	return []string{
		r.OpenTime.Format(domain.TimestampLayout),
		formatFloat(r.Open),
		formatFloat(r.High),
		formatFloat(r.Low),
		formatFloat(r.Close),
		formatFloat(r.Volume),
		r.CloseTime.Format(domain.TimestampLayout),
		formatFloat(r.QuoteVolume),
		strconv.FormatInt(r.Trades, 10),
		formatFloat(r.TakerBuyBaseVolume),
		formatFloat(r.TakerBuyQuoteVolume),
		r.Date.Format(domain.DateLayout),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
