package twitch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamefinder/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleeper records requested waits instead of sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestExecutor(baseURL string, attempts int, sleeper *recordingSleeper, opts ...ExecutorOption) *Executor {
	policy := RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Second, BackoffFactor: 2, MaxJitter: 100 * time.Millisecond}
	opts = append([]ExecutorOption{
		WithSleeper(sleeper.Sleep),
		WithJitter(func() time.Duration { return 0 }),
	}, opts...)
	return NewExecutor(baseURL, "client-id", policy, discardLogger(), opts...)
}

func TestExecuteSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/users", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("login"))
		assert.Equal(t, "client-id", r.Header.Get("Client-Id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.URL+"/helix/", 1, &recordingSleeper{})
	resp, err := exec.Execute(context.Background(), Request{
		Endpoint: "users",
		Query:    map[string][]string{"login": {"alice"}},
		Token:    "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[]}`, string(resp.Body))
}

func TestExecuteRetryAfterDoesNotConsumeBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	// A budget of one attempt would be exhausted by the first 429 if it counted.
	exec := newTestExecutor(srv.URL, 1, sleeper)

	resp, err := exec.Execute(context.Background(), Request{Endpoint: "users"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(4), calls.Load())

	waits := sleeper.Waits()
	require.Len(t, waits, 3)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, 6*time.Second, "3s advised delay scaled by factor 2")
	}
}

func TestExecuteRateLimitDefaultsToBaseDelay(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	exec := newTestExecutor(srv.URL, 1, sleeper)

	_, err := exec.Execute(context.Background(), Request{Endpoint: "clips"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Waits())
}

func TestExecuteRatelimitResetHeader(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Ratelimit-Reset", strconv.FormatInt(now.Add(5*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	exec := newTestExecutor(srv.URL, 1, sleeper, WithClock(func() time.Time { return now }))

	_, err := exec.Execute(context.Background(), Request{Endpoint: "videos"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeper.Waits())
}

func TestExecuteExhaustsBudgetOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	exec := newTestExecutor(srv.URL, 5, sleeper)

	_, err := exec.Execute(context.Background(), Request{Endpoint: "users"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetriesExhausted))

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 5, fe.Attempts)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)

	assert.Equal(t, int32(5), calls.Load())
	// Exponential waits between attempts, none after the last one.
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}, sleeper.Waits())
}

func TestExecuteRecoversFromTransientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":[{"id":"1"}]}`))
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.URL, 3, &recordingSleeper{})
	resp, err := exec.Execute(context.Background(), Request{Endpoint: "users"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, string(resp.Body), `"id":"1"`)
}

func TestExecuteConnectionErrorConsumesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	exec := newTestExecutor(url, 3, sleeper)

	_, err := exec.Execute(context.Background(), Request{Endpoint: "users"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRetriesExhausted))
	assert.Len(t, sleeper.Waits(), 2)
}

func TestExecuteCancellationIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec := newTestExecutor(srv.URL, 5, &recordingSleeper{})
	_, err := exec.Execute(ctx, Request{Endpoint: "users"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrRetriesExhausted))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteCancelledDuringRateLimitWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	exec := newTestExecutor(srv.URL, 5, &recordingSleeper{}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := exec.Execute(ctx, Request{Endpoint: "users"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepContext(ctx, time.Minute)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRandomJitterBounds(t *testing.T) {
	exec := NewExecutor("http://example.invalid", "id", DefaultRetryPolicy, discardLogger())
	for i := 0; i < 200; i++ {
		j := exec.jitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, DefaultRetryPolicy.MaxJitter)
	}
}
