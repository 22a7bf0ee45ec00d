package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/archive"
	"github.com/0xc0d3d00d/klinearchive/internal/domain"
	"github.com/0xc0d3d00d/klinearchive/internal/logging"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	Symbol    string `env:"SYMBOL" envDefault:"BTCUSDT"`
	Interval  string `env:"INTERVAL" envDefault:"30m"`
	BaseURL   string `env:"BASE_URL" envDefault:"https://data.binance.vision/data/spot/daily/klines"`
	StartDate string `env:"START_DATE" envDefault:"2017-12-17"`
	EndDate   string `env:"END_DATE"` // empty means today (UTC)
	DataDir   string `env:"DATA_DIR" envDefault:"./data"`

	MaxWorkers        int           `env:"MAX_WORKERS" envDefault:"50"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"5"`
	BackoffFactor     float64       `env:"BACKOFF_FACTOR" envDefault:"2"`
	MaxBackoff        time.Duration `env:"MAX_BACKOFF" envDefault:"0s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"0"`

	// Certificate verification stays on unless explicitly disabled.
	InsecureSkipVerify bool `env:"INSECURE_SKIP_VERIFY" envDefault:"false"`
	SkipMissing        bool `env:"SKIP_MISSING" envDefault:"false"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogMaxAge      int    `env:"LOG_MAX_AGE" envDefault:"0"`
	LogNoColor     bool   `env:"LOG_NO_COLOR" envDefault:"false"`
	MetricsAddress string `env:"METRICS_ADDR"`
}

func loadConfig(config any) error {
	// Ignore error if .env is missing
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		return err
	}

	// Parse for built-in types
	if err := env.Parse(config); err != nil {
		return err
	}

	return nil
}

// parseFlags lets the command line override the configured date range.
func (c *config) parseFlags(fs *flag.FlagSet, args []string) error {
	fs.StringVar(&c.StartDate, "start", c.StartDate, "first date to download, YYYY-MM-DD")
	fs.StringVar(&c.EndDate, "end", c.EndDate, "last date to download, YYYY-MM-DD (default today)")
	fs.StringVar(&c.Symbol, "symbol", c.Symbol, "trading pair, e.g. BTCUSDT")
	fs.StringVar(&c.Interval, "interval", c.Interval, "kline interval, e.g. 30m")
	fs.IntVar(&c.MaxWorkers, "workers", c.MaxWorkers, "concurrent downloads")
	return fs.Parse(args)
}

func (c *config) validate(now time.Time) error {
	var errs []error

	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol must not be empty"))
	}
	if _, err := domain.ParseInterval(c.Interval); err != nil {
		errs = append(errs, fmt.Errorf("interval %q: %w", c.Interval, err))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("max workers must be at least 1, got %d", c.MaxWorkers))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.BackoffFactor <= 0 {
		errs = append(errs, fmt.Errorf("backoff factor must be positive, got %v", c.BackoffFactor))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if _, _, err := c.dateRange(now); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *config) dateRange(now time.Time) (time.Time, time.Time, error) {
	start, err := domain.ParseDate(c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
	}

	end := now.UTC().Truncate(24 * time.Hour)
	if c.EndDate != "" {
		end, err = domain.ParseDate(c.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
		}
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is after %s",
			domain.ErrInvalidDateRange, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}

	return start, end, nil
}

func (c *config) locator() archive.Locator {
	return archive.Locator{
		BaseURL:  c.BaseURL,
		Symbol:   c.Symbol,
		Interval: domain.Interval(c.Interval),
	}
}

// logOptions expects a validated config.
func (c *config) logOptions(console io.Writer, file string) logging.Options {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.Options{
		Level:   level,
		Console: console,
		NoColor: c.LogNoColor,
		File:    file,
		MaxAge:  c.LogMaxAge,
	}
}

func (c *config) archiveOptions() archive.Options {
	return archive.Options{
		MaxRetries:         c.MaxRetries,
		BackoffFactor:      c.BackoffFactor,
		MaxBackoff:         c.MaxBackoff,
		Timeout:            c.RequestTimeout,
		InsecureSkipVerify: c.InsecureSkipVerify,
		SkipMissing:        c.SkipMissing,
		RequestsPerSecond:  c.RequestsPerSecond,
		MaxConnsPerHost:    c.MaxWorkers,
	}
}
