package archive

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrNotFound         = errors.New("archive file not found")
)

// StatusError is returned for any non-2xx response. It is retried like a
// network failure.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Options struct {
	MaxRetries        int
	BackoffFactor     float64
	RequestsPerSecond float64
	MaxConnsPerHost   int

	// MaxBackoff caps a single wait. Zero leaves the backoff uncapped.
	MaxBackoff time.Duration

	// Timeout applies to each attempt, not to the whole retry sequence.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate validation.
	InsecureSkipVerify bool

	// SkipMissing abandons a 404 after the first attempt instead of retrying it.
	SkipMissing bool
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:    5,
		BackoffFactor: 2,
		Timeout:       10 * time.Second,
	}
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type ClientOption func(*Client)

func WithSleep(fn SleepFunc) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithAttemptObserver registers a callback invoked once per attempt with
// OutcomeSuccess or OutcomeFailure.
func WithAttemptObserver(fn func(outcome string)) ClientOption {
	return func(c *Client) {
		c.observe = fn
	}
}

type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	sleep      SleepFunc
	observe    func(outcome string)
}

func NewClient(opts Options, clientOpts ...ClientOption) *Client {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}
	if opts.MaxConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = opts.MaxConnsPerHost
		transport.MaxConnsPerHost = opts.MaxConnsPerHost
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		sleep:   sleepContext,
		observe: func(string) {},
	}

	if opts.RequestsPerSecond > 0 {
		burst := int(math.Ceil(opts.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	for _, opt := range clientOpts {
		opt(c)
	}

	return c
}

// Backoff returns factor^attempt seconds, capped at limit when limit is
// positive. Waits beyond the range of time.Duration saturate at its maximum.
func Backoff(factor float64, attempt int, limit time.Duration) time.Duration {
	wait := time.Duration(math.MaxInt64)
	if ns := math.Pow(factor, float64(attempt)) * float64(time.Second); ns < math.MaxInt64 {
		wait = time.Duration(ns)
	}
	if limit > 0 && wait > limit {
		return limit
	}
	return wait
}

// Download retrieves url, retrying network failures and non-2xx statuses up
// to MaxRetries times. There is no wait after the final attempt.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		body, err := c.get(ctx, url)
		if err == nil {
			c.observe(OutcomeSuccess)
			return body, nil
		}
		c.observe(OutcomeFailure)
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("failed to download %s: %w", url, ctxErr)
		}

		var statusErr *StatusError
		if c.opts.SkipMissing && errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}

		slog.WarnContext(ctx, "download attempt failed",
			"attempt", attempt, "max_retries", c.opts.MaxRetries, "url", url, "error", err)

		if attempt == c.opts.MaxRetries {
			break
		}

		wait := Backoff(c.opts.BackoffFactor, attempt, c.opts.MaxBackoff)
		slog.InfoContext(ctx, "retrying download", "url", url, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", url, err)
		}
	}

	slog.ErrorContext(ctx, "max retries reached", "url", url, "error", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.opts.MaxRetries, lastErr)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
