package twitch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gamefinder/internal/core/domain"
)

const maxBodyBytes = 8 << 20

// Request describes one GET against the Helix API.
type Request struct {
	Endpoint string // path under the API base, e.g. "users"
	Query    url.Values
	Token    string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RetryPolicy controls both retry loops of the Executor.
type RetryPolicy struct {
	MaxAttempts   int           // budget for transport errors and non-429 statuses
	BaseDelay     time.Duration // default advised delay and transient backoff base
	BackoffFactor float64       // multiplier applied to the advised 429 delay
	MaxJitter     time.Duration // jitter is drawn from [0, MaxJitter)
}

// DefaultRetryPolicy mirrors config.Default.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   5,
	BaseDelay:     time.Second,
	BackoffFactor: 2,
	MaxJitter:     100 * time.Millisecond,
}

// Executor performs Helix GETs with two composed retry policies: an unbounded
// wait on 429 and a bounded budget for every other failure.
type Executor struct {
	client   *http.Client
	baseURL  string
	clientID string
	policy   RetryPolicy
	limiter  *rate.Limiter
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func() time.Duration
	now      func() time.Time
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithRequestsPerSecond paces outbound calls. Zero or less disables pacing.
func WithRequestsPerSecond(rps float64) ExecutorOption {
	return func(e *Executor) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(math.Ceil(rps))))
		}
	}
}

// WithSleeper replaces the context-aware sleep used between retries.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// WithJitter replaces the jitter source.
func WithJitter(fn func() time.Duration) ExecutorOption {
	return func(e *Executor) { e.jitter = fn }
}

// WithClock replaces the clock used to interpret Ratelimit-Reset.
func WithClock(fn func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = fn }
}

// NewExecutor creates an Executor for the API rooted at baseURL.
func NewExecutor(baseURL, clientID string, policy RetryPolicy, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:   &http.Client{Timeout: 60 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		policy:   policy,
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
	}
	e.jitter = e.randomJitter
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.MaxAttempts < 1 {
		e.policy.MaxAttempts = 1
	}
	return e
}

// Execute sends req and returns the first 2xx response. Rate-limited
// responses are waited out without consuming the attempt budget. Context
// cancellation is returned as-is and never retried.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.untilNotRateLimited(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		lastStatus = 0
		if se, ok := err.(*domain.StatusError); ok {
			lastStatus = se.StatusCode
		}

		if attempt < e.policy.MaxAttempts-1 {
			wait := e.transientDelay(attempt)
			e.logger.Debug("request failed, retrying",
				slog.String("endpoint", req.Endpoint),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	return nil, &domain.FetchError{
		Endpoint:   req.Endpoint,
		Attempts:   e.policy.MaxAttempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// untilNotRateLimited repeats the call for as long as the server answers 429.
func (e *Executor) untilNotRateLimited(ctx context.Context, req Request) (*Response, error) {
	for {
		resp, err := e.do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, &domain.StatusError{StatusCode: resp.StatusCode, Body: truncate(string(resp.Body), 200)}
			}
			return resp, nil
		}

		wait := e.rateLimitDelay(resp.Header)
		e.logger.Warn("rate limited, waiting",
			slog.String("endpoint", req.Endpoint),
			slog.Duration("wait", wait),
		)
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (e *Executor) do(ctx context.Context, req Request) (*Response, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target := e.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Client-Id", e.clientID)
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// rateLimitDelay returns advised*BackoffFactor + jitter. The advised delay is
// Retry-After in seconds, else the time until Ratelimit-Reset, else BaseDelay.
func (e *Executor) rateLimitDelay(h http.Header) time.Duration {
	advised := e.policy.BaseDelay
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			advised = time.Duration(secs) * time.Second
		}
	} else if v := strings.TrimSpace(h.Get("Ratelimit-Reset")); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(e.now()); d > 0 {
				advised = d
			}
		}
	}
	return time.Duration(float64(advised)*e.policy.BackoffFactor) + e.jitter()
}

// transientDelay returns BaseDelay * 2^attempt + jitter.
func (e *Executor) transientDelay(attempt int) time.Duration {
	return time.Duration(float64(e.policy.BaseDelay)*math.Pow(2, float64(attempt))) + e.jitter()
}

func (e *Executor) randomJitter() time.Duration {
	if e.policy.MaxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(e.policy.MaxJitter)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
