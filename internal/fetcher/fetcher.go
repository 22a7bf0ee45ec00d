package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/archive"
	"github.com/0xc0d3d00d/klinearchive/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxWorkers  = 50
	DefaultReportEvery = 10
)

// Interface requirements for the archive client
type downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

type Option func(*Fetcher)

func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

func WithReportEvery(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.reportEvery = n
		}
	}
}

type Fetcher struct {
	locator     archive.Locator
	client      downloader
	maxWorkers  int
	reportEvery int
	progress    *ProgressCounters
	metrics     *Metrics
	now         func() time.Time
}

func New(locator archive.Locator, client downloader, maxWorkers int, opts ...Option) *Fetcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	f := &Fetcher{
		locator:     locator,
		client:      client,
		maxWorkers:  maxWorkers,
		reportEvery: DefaultReportEvery,
		progress:    &ProgressCounters{},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Fetcher) Progress() *ProgressCounters {
	return f.progress
}

type result struct {
	task domain.FetchTask
	rows domain.RawDataset
	err  error
}

// Fetch downloads one archive per calendar date in [start, end] and returns
// the concatenated rows in completion order. Failed dates are logged and
// skipped; an empty dataset is not an error.
func (f *Fetcher) Fetch(ctx context.Context, start, end time.Time) (domain.RawDataset, error) {
	tasks, err := f.locator.Tasks(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to build tasks: %w", err)
	}

	slog.InfoContext(ctx, "downloading data",
		"from", start.Format(domain.DateLayout),
		"to", end.Format(domain.DateLayout),
		"tasks", len(tasks),
		"workers", f.maxWorkers,
	)

	f.progress.reset(len(tasks))
	rep := &reporter{every: int64(f.reportEvery), started: f.now(), now: f.now}

	results := make(chan result)
	go f.dispatch(ctx, tasks, results)

	rows := domain.RawDataset{}
	total := int64(len(tasks))
	for res := range results {
		var completed int64
		if res.err != nil {
			completed = f.progress.failure()
			f.metrics.taskDone(resultFailure, 0)
			slog.WarnContext(ctx, "failed to process data",
				"date", res.task.Date.Format(domain.DateLayout),
				"url", res.task.URL,
				"error", res.err,
			)
		} else {
			rows = append(rows, res.rows...)
			completed = f.progress.success()
			f.metrics.taskDone(resultSuccess, len(res.rows))
		}

		if rep.due(completed, total) {
			rep.report(ctx, f.progress.Snapshot())
		}
	}

	rep.summary(ctx, f.progress.Snapshot())

	if len(rows) == 0 {
		slog.WarnContext(ctx, "no data was downloaded")
		return domain.RawDataset{}, nil
	}

	slog.InfoContext(ctx, "final dataset size", "rows", len(rows), "expected_rows", f.expectedRows(len(tasks)))
	return rows, nil
}

// expectedRows is the row count of a complete batch, or zero when the interval
// does not divide a day.
func (f *Fetcher) expectedRows(tasks int) int {
	d := f.locator.Interval.Duration()
	if d <= 0 || 24*time.Hour%d != 0 {
		return 0
	}
	return tasks * int(24*time.Hour/d)
}

// dispatch runs every task on a bounded pool and closes results once all of
// them have reported.
func (f *Fetcher) dispatch(ctx context.Context, tasks []domain.FetchTask, results chan<- result) {
	var g errgroup.Group
	g.SetLimit(f.maxWorkers)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			results <- f.run(ctx, task)
			return nil
		})
	}

	_ = g.Wait()
	close(results)
}

func (f *Fetcher) run(ctx context.Context, task domain.FetchTask) result {
	f.metrics.taskStarted()
	defer f.metrics.taskFinished()

	data, err := f.client.Download(ctx, task.URL)
	if err != nil {
		return result{task: task, err: fmt.Errorf("failed to download %s: %w", task.Name, err)}
	}

	rows, err := archive.Decode(data, task.Date)
	if err != nil {
		return result{task: task, err: fmt.Errorf("failed to decode %s: %w", task.Name, err)}
	}

	return result{task: task, rows: rows}
}
