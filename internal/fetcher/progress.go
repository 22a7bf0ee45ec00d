package fetcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ProgressCounters is shared between the completion loop and anything that
// wants to observe a running batch.
type ProgressCounters struct {
	total     atomic.Int64
	completed atomic.Int64
	succeeded atomic.Int64
	errored   atomic.Int64
}

type Progress struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Succeeded int64 `json:"succeeded"`
	Errored   int64 `json:"errors"`
}

func (p *ProgressCounters) reset(total int) {
	p.total.Store(int64(total))
	p.completed.Store(0)
	p.succeeded.Store(0)
	p.errored.Store(0)
}

func (p *ProgressCounters) success() int64 {
	p.succeeded.Add(1)
	return p.completed.Add(1)
}

func (p *ProgressCounters) failure() int64 {
	p.errored.Add(1)
	return p.completed.Add(1)
}

func (p *ProgressCounters) Snapshot() Progress {
	return Progress{
		Total:     p.total.Load(),
		Completed: p.completed.Load(),
		Succeeded: p.succeeded.Load(),
		Errored:   p.errored.Load(),
	}
}

// Throughput is completions per second.
func Throughput(completed int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(completed) / elapsed.Seconds()
}

// ETA is remaining / throughput, or zero while throughput is zero.
func ETA(remaining int64, throughput float64) time.Duration {
	if throughput <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / throughput * float64(time.Second))
}

type reporter struct {
	every   int64
	started time.Time
	now     func() time.Time
}

func (r *reporter) due(completed, total int64) bool {
	return completed%r.every == 0 || completed == total
}

func (r *reporter) report(ctx context.Context, p Progress) {
	elapsed := r.now().Sub(r.started)
	rate := Throughput(p.Completed, elapsed)

	slog.InfoContext(ctx, "download progress",
		"completed", p.Completed,
		"total", p.Total,
		"succeeded", p.Succeeded,
		"errors", p.Errored,
		"elapsed", elapsed.Round(time.Millisecond),
		"rate", rate,
		"eta", ETA(p.Total-p.Completed, rate).Round(time.Millisecond),
	)
}

func (r *reporter) summary(ctx context.Context, p Progress) {
	slog.InfoContext(ctx, "download complete",
		"total", p.Total,
		"succeeded", p.Succeeded,
		"errors", p.Errored,
		"elapsed", r.now().Sub(r.started).Round(time.Millisecond),
	)
}
