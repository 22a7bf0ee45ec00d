package archive

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xc0d3d00d/klinearchive/internal/archive/archivetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestLocator(t *testing.T) {
	l := Locator{BaseURL: DefaultBaseURL + "/", Symbol: "BTCUSDT", Interval: "30m"}

	task := l.Task(day)
	require.Equal(t, "BTCUSDT-30m-2024-01-01.zip", task.Name)
	require.Equal(t, "https://data.binance.vision/data/spot/daily/klines/BTCUSDT/30m/BTCUSDT-30m-2024-01-01.zip", task.URL)
	require.Equal(t, day, task.Date)

	tasks, err := l.Tasks(day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	require.Equal(t, "BTCUSDT-30m-2024-01-03.zip", tasks[2].Name)
}

func TestBackoff(t *testing.T) {
	var got []time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		got = append(got, Backoff(2, attempt, 0))
	}
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}, got)

	require.Equal(t, 10*time.Second, Backoff(2, 4, 10*time.Second), "cap not applied")
	require.Equal(t, 1500*time.Millisecond, Backoff(1.5, 1, 0))
}

func TestBackoff_Saturates(t *testing.T) {
	for _, attempt := range []int{34, 35, 64, 1024} {
		wait := Backoff(2, attempt, 0)
		require.Equal(t, time.Duration(math.MaxInt64), wait, "attempt %d", attempt)
	}
	require.Equal(t, time.Minute, Backoff(2, 34, time.Minute))
	require.Equal(t, time.Minute, Backoff(2, 1024, time.Minute))

	require.Greater(t, Backoff(2, 33, 0), Backoff(2, 32, 0))
}

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDownload_SucceedsAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	rec := &recorder{}
	var outcomes []string
	c := NewClient(DefaultOptions(), WithSleep(rec.sleep), WithAttemptObserver(func(o string) {
		outcomes = append(outcomes, o)
	}))

	body, err := c.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "payload", string(body))
	require.Equal(t, int32(3), calls.Load())
	// 2^1 + 2^2 seconds before the third attempt
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
	require.Equal(t, []string{OutcomeFailure, OutcomeFailure, OutcomeSuccess}, outcomes)
}

func TestDownload_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := NewClient(DefaultOptions(), WithSleep(rec.sleep))

	_, err := c.Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	require.Equal(t, int32(5), calls.Load())
	require.Len(t, rec.waits, 4, "no wait expected after the final attempt")
}

func TestDownload_SkipMissing(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.SkipMissing = true
	rec := &recorder{}
	c := NewClient(opts, WithSleep(rec.sleep))

	_, err := c.Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, rec.waits)
}

func TestDownload_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	opts := DefaultOptions()
	opts.MaxRetries = 2
	rec := &recorder{}
	c := NewClient(opts, WithSleep(rec.sleep))

	_, err := c.Download(context.Background(), url)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
}

func TestDownload_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(DefaultOptions(), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := c.Download(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrRetriesExhausted))
}

func TestDownload_CertificateVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.MaxRetries = 1

	_, err := NewClient(opts).Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrRetriesExhausted, "self-signed certificate accepted by default")

	opts.InsecureSkipVerify = true
	body, err := NewClient(opts).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
}

func TestDownload_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.RequestsPerSecond = 1000
	c := NewClient(opts)

	for i := 0; i < 3; i++ {
		body, err := c.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, "ok", string(body))
	}
}

func TestDecode(t *testing.T) {
	content := archivetest.KlineCSV(day, 48, 30*time.Minute)
	data := archivetest.Zip(t, "BTCUSDT-30m-2024-01-01.csv", content)

	rows, err := Decode(data, day)
	require.NoError(t, err)
	require.Len(t, rows, 48)

	first := rows[0]
	assert.Equal(t, day, first.OpenTime, "open time mismatch")
	assert.Equal(t, day.Add(30*time.Minute-time.Millisecond), first.CloseTime, "close time mismatch")
	assert.Equal(t, 42000.0, first.Open)
	assert.Equal(t, 42010.0, first.High)
	assert.Equal(t, 41990.0, first.Low)
	assert.Equal(t, 42005.0, first.Close)
	assert.Equal(t, 1.5, first.Volume)
	assert.Equal(t, 63000.0, first.QuoteVolume)
	assert.Equal(t, int64(100), first.Trades)
	assert.Equal(t, 0.75, first.TakerBuyBaseVolume)
	assert.Equal(t, 31500.0, first.TakerBuyQuoteVolume)
	assert.Equal(t, day, first.Date, "source date tag mismatch")

	assert.Equal(t, day.Add(47*30*time.Minute), rows[47].OpenTime)
}

func TestDecode_HeaderAndMicroseconds(t *testing.T) {
	header := "open_time,open,high,low,close,volume,close_time,quote_volume,count,taker_buy_volume,taker_buy_quote_volume,ignore\n"
	line := "1704067200000000,1,2,0.5,1.5,10,1704068999999999,15,3,4,6,0\n"
	data := archivetest.Zip(t, "x.csv", header+line)

	rows, err := Decode(data, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, day, rows[0].OpenTime)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("not a zip"), day)
	require.ErrorIs(t, err, ErrMalformedArchive)

	_, err = Decode(archivetest.Zip(t, "x.csv", "1,2,3\n"), day)
	require.ErrorIs(t, err, ErrMalformedArchive)

	bad := strings.Replace(archivetest.KlineCSV(day, 1, time.Minute), "42000.00", "abc", 1)
	_, err = Decode(archivetest.Zip(t, "x.csv", bad), day)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, 1, parseErr.Column)
}
