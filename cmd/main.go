package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/archive"
	"github.com/0xc0d3d00d/klinearchive/internal/fetcher"
	"github.com/0xc0d3d00d/klinearchive/internal/logging"
	"github.com/0xc0d3d00d/klinearchive/internal/normalize"
	"github.com/0xc0d3d00d/klinearchive/internal/server"
	"github.com/0xc0d3d00d/klinearchive/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// console only until the data directory is known
	logger, _ := logging.New(logging.Options{Level: slog.LevelInfo, Console: os.Stderr})
	slog.SetDefault(logger)

	cfg := config{}
	err := loadConfig(&cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.parseFlags(flag.CommandLine, os.Args[1:]); err != nil {
		slog.ErrorContext(ctx, "failed to parse flags", "error", err)
		os.Exit(1)
	}

	started := time.Now()
	if err := cfg.validate(started); err != nil {
		slog.ErrorContext(ctx, "invalid config", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewStore(afero.NewOsFs(), cfg.DataDir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create storage", "error", err)
		os.Exit(1)
	}

	logger, logFile := logging.New(cfg.logOptions(os.Stderr, store.LogPath(cfg.Symbol, started)))
	slog.SetDefault(logger.With("symbol", cfg.Symbol, "interval", cfg.Interval))

	err = run(ctx, &cfg, store, started)
	if err != nil {
		slog.ErrorContext(ctx, "run failed", "error", err)
	}

	logFile.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, store *storage.Store, now time.Time) error {
	start, end, err := cfg.dateRange(now)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := fetcher.NewMetrics(reg)

	if cfg.InsecureSkipVerify {
		slog.WarnContext(ctx, "TLS certificate verification is disabled for archive requests")
	}
	client := archive.NewClient(cfg.archiveOptions(), archive.WithAttemptObserver(metrics.ObserveAttempt))
	f := fetcher.New(cfg.locator(), client, cfg.MaxWorkers, fetcher.WithMetrics(metrics))

	g, gCtx := errgroup.WithContext(ctx)
	batchCtx, batchDone := context.WithCancel(gCtx)
	defer batchDone()

	if cfg.MetricsAddress != "" {
		metricsServer := server.New(batchCtx, cfg.MetricsAddress, reg, server.WithProgress(f.Progress().Snapshot))

		g.Go(func() error {
			slog.InfoContext(ctx, "starting metrics server", "listen_address", cfg.MetricsAddress)
			err := runHttpServer(batchCtx, cfg.MetricsAddress, metricsServer)
			// errors after the batch has finished do not matter
			if err != nil && batchCtx.Err() == nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-batchCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer batchDone()
		return process(batchCtx, cfg, f, store, start, end)
	})

	return g.Wait()
}

// process fetches the range, persists the raw table, then normalizes it from
// disk and persists the canonical table.
func process(ctx context.Context, cfg *config, f *fetcher.Fetcher, store *storage.Store, start, end time.Time) error {
	rows, err := f.Fetch(ctx, start, end)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}

	rawFile, err := store.WriteRaw(ctx, cfg.Symbol, rows)
	if err != nil {
		return fmt.Errorf("failed to save raw data: %w", err)
	}

	header, records, err := store.ReadTable(ctx, rawFile)
	if err != nil {
		return fmt.Errorf("failed to load raw data: %w", err)
	}

	candles, err := normalize.Normalize(cfg.Symbol, header, records)
	if err != nil {
		return fmt.Errorf("failed to normalize %s: %w", rawFile, err)
	}

	if _, err := store.WriteCandles(ctx, cfg.Symbol, candles); err != nil {
		return fmt.Errorf("failed to save preprocessed data: %w", err)
	}

	return nil
}

func runHttpServer(ctx context.Context, listenAddress string, srv *server.Server) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return err
	}

	err = srv.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
