// Package ratelimit implements a token bucket whose state lives in Redis so
// that every ingestion process draws from the same quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finsight/internal/logger"
	"finsight/internal/observability"
)

// ErrCostExceedsCapacity is returned when a request asks for more tokens than
// the bucket can ever hold.
var ErrCostExceedsCapacity = errors.New("ratelimit: cost exceeds bucket capacity")

// acquireScript refills and consumes in one atomic step. KEYS: tokens,
// last_refill. ARGV: max, refill amount, interval ms, now ms, cost.
var acquireScript = redis.NewScript(`
local max_tokens = tonumber(ARGV[1])
local refill_amount = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])

local tokens = max_tokens
local raw = redis.call('GET', KEYS[1])
if raw then
  tokens = tonumber(raw)
end

local last = now
raw = redis.call('GET', KEYS[2])
if raw then
  last = tonumber(raw)
end

local elapsed = now - last
if elapsed > interval then
  tokens = tokens + math.floor(elapsed / interval) * refill_amount
  last = now
end
if tokens > max_tokens then
  tokens = max_tokens
end

local granted = 0
if tokens >= cost then
  tokens = tokens - cost
  granted = 1
end

redis.call('SET', KEYS[1], tokens)
redis.call('SET', KEYS[2], last)
return {granted, tokens}
`)

// Settings configures one bucket.
type Settings struct {
	MaxTokens      int64
	RefillAmount   int64
	RefillInterval time.Duration
}

// Limiter is a token bucket keyed by name. It holds no bucket state itself.
type Limiter struct {
	store    redis.Cmdable
	settings Settings
	now      func() time.Time
	metrics  *observability.Metrics
	log      *zap.SugaredLogger
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMetrics records acquisitions and waits.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// New creates a limiter backed by store.
func New(store redis.Cmdable, settings Settings, opts ...Option) *Limiter {
	if settings.RefillInterval <= 0 {
		settings.RefillInterval = time.Minute
	}
	l := &Limiter{
		store:    store,
		settings: settings,
		now:      time.Now,
		log:      logger.Named("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Settings returns the bucket configuration.
func (l *Limiter) Settings() Settings { return l.settings }

// Acquire tries to take cost tokens from the bucket named key. It never
// blocks; false means the bucket did not hold enough tokens.
func (l *Limiter) Acquire(ctx context.Context, key string, cost int64) (bool, error) {
	if cost < 1 {
		cost = 1
	}
	if cost > l.settings.MaxTokens {
		return false, fmt.Errorf("%w: cost %d, capacity %d", ErrCostExceedsCapacity, cost, l.settings.MaxTokens)
	}

	res, err := acquireScript.Run(ctx, l.store, []string{tokensKey(key), refillKey(key)},
		l.settings.MaxTokens,
		l.settings.RefillAmount,
		l.settings.RefillInterval.Milliseconds(),
		l.now().UnixMilli(),
		cost,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}

	granted := len(res) > 0 && res[0] == 1
	l.metrics.Acquisition(key, granted)
	return granted, nil
}

// Wait polls Acquire every poll interval until a token is granted or ctx is
// done. There is no backoff or queueing.
func (l *Limiter) Wait(ctx context.Context, key string, cost int64, poll time.Duration) error {
	if poll <= 0 {
		poll = time.Second
	}
	for {
		ok, err := l.Acquire(ctx, key, cost)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		l.metrics.Waited(key)
		l.log.Debugw("rate limit exceeded, waiting", "key", key, "poll", poll)

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens reports the stored token count for key without refilling. A bucket
// that has never been used reports full capacity.
func (l *Limiter) Tokens(ctx context.Context, key string) (int64, error) {
	raw, err := l.store.Get(ctx, tokensKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return l.settings.MaxTokens, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Both bucket keys share a hash tag so they land in the same cluster slot.
func tokensKey(key string) string { return "{" + key + "}:tokens" }
func refillKey(key string) string { return "{" + key + "}:last_refill" }
