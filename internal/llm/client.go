package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dshills/quorum/internal/cache"
	"github.com/dshills/quorum/internal/logging"
	"github.com/dshills/quorum/internal/metrics"
	"github.com/dshills/quorum/internal/providers"
	"github.com/dshills/quorum/internal/tracing"
)

// Defaults applied to zero Options fields.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 20 * time.Second
	DefaultMaxConcurrent = 8
)

// Backend performs a single upstream completion. providers.Provider
// implementations satisfy it.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req providers.Request) (providers.Response, error)
}

// Request is one model call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks for a JSON-only response where the backend supports it.
	JSON bool
}

// Options configures a Client. Zero values take the package defaults.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	MaxConcurrent     int
	RequestsPerMinute int // 0 disables the limiter

	Cache   *cache.Cache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// Client makes resilient model calls through one backend. It is safe for
// concurrent use.
type Client struct {
	backend Backend
	opts    Options
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	log     *slog.Logger
	tracer  trace.Tracer

	jitter func() float64
}

// New creates a client around backend.
func New(backend Backend, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}

	c := &Client{
		backend: backend,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:     logging.OrNop(opts.Logger).With("backend", backend.Name()),
		tracer:  opts.Tracer,
		jitter:  rand.Float64,
	}
	if c.tracer == nil {
		c.tracer = tracing.Tracer()
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), 1)
	}
	return c
}

// Backend returns the backend name.
func (c *Client) Backend() string { return c.backend.Name() }

// Model returns the backend's model identifier.
func (c *Client) Model() string { return c.backend.Model() }

// Call sends req and returns the raw response text.
func (c *Client) Call(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	key := c.cacheKey(req)
	if resp, ok := c.opts.Cache.Get(key); ok {
		c.opts.Metrics.CacheHit()
		c.opts.Metrics.ModelCall(c.backend.Name(), "cached", 0)
		return resp, nil
	}

	ctx, span := c.tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("llm.backend", c.backend.Name()),
		attribute.String("llm.model", c.backend.Model()),
	))
	defer span.End()

	text, attempts, err := c.call(ctx, req)
	outcome := outcomeOf(err)
	span.SetAttributes(
		attribute.Int("llm.attempts", attempts),
		attribute.String("llm.outcome", outcome),
	)
	c.opts.Metrics.ModelCall(c.backend.Name(), outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return "", err
	}

	if err := c.opts.Cache.Put(key, text); err != nil {
		c.log.Debug("cache write failed", "error", err)
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, req Request) (string, int, error) {
	preq := providers.Request{
		System:      req.System,
		User:        req.User,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSON:        req.JSON,
	}

	var lastErr error
	var lastTimedOut bool
	attempt := 0
	for attempt < c.opts.MaxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return "", attempt - 1, err
		}

		resp, timedOut, err := c.attempt(ctx, preq)
		if err == nil {
			c.opts.Metrics.ModelTokens(c.backend.Name(), resp.TokensUsed)
			return resp.Content, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", attempt, ctxErr
		}
		if !timedOut && !providers.IsTransient(err) {
			return "", attempt, err
		}
		lastErr, lastTimedOut = err, timedOut

		if attempt == c.opts.MaxAttempts {
			break
		}
		delay := c.backoff(attempt, providers.RetryAfterFrom(err))
		c.log.Warn("model call failed, retrying",
			"attempt", attempt,
			"max_attempts", c.opts.MaxAttempts,
			"delay", delay,
			"timed_out", timedOut,
			"error", err,
		)
		c.opts.Metrics.ModelRetry(c.backend.Name())
		if err := sleep(ctx, delay); err != nil {
			return "", attempt, err
		}
	}

	if lastTimedOut {
		return "", attempt, &TimeoutError{Backend: c.backend.Name(), Limit: c.opts.Timeout, Attempts: attempt}
	}
	return "", attempt, &UnavailableError{Backend: c.backend.Name(), Attempts: attempt, Err: lastErr}
}

// attempt runs one gated backend request under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, req providers.Request) (providers.Response, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return providers.Response{}, false, err
		}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return providers.Response{}, false, err
	}
	c.opts.Metrics.InflightAdd(1)
	defer func() {
		c.opts.Metrics.InflightAdd(-1)
		c.sem.Release(1)
	}()

	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.backend.Complete(actx, req)
	if err != nil {
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return providers.Response{}, timedOut, err
	}
	return resp, false, nil
}

// backoff returns the delay before the attempt after attempt n (1-based):
// BaseDelay·2^(n-1) capped at MaxDelay, with equal jitter, raised to any
// Retry-After hint (still capped).
func (c *Client) backoff(n int, retryAfter time.Duration) time.Duration {
	d := c.opts.BaseDelay
	for i := 1; i < n && d < c.opts.MaxDelay; i++ {
		d *= 2
	}
	if d > c.opts.MaxDelay {
		d = c.opts.MaxDelay
	}
	half := d / 2
	d = half + time.Duration(c.jitter()*float64(d-half))
	if retryAfter > d {
		d = min(retryAfter, c.opts.MaxDelay)
	}
	return d
}

func (c *Client) cacheKey(req Request) string {
	if !c.opts.Cache.Enabled() {
		return ""
	}
	return cache.Key(
		c.backend.Name(),
		c.backend.Model(),
		req.System,
		req.User,
		strconv.FormatFloat(req.Temperature, 'f', -1, 64),
		strconv.Itoa(req.MaxTokens),
		fmt.Sprint(req.JSON),
	)
}

func outcomeOf(err error) string {
	var timeoutErr *TimeoutError
	var unavailableErr *UnavailableError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &unavailableErr):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "rejected"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
