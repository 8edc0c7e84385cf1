// Package rate is a fixed-window request limiter over the ephemeral keyed
// store, so limits are shared when the cache backend is shared.
package rate

import (
	"context"
	"strconv"
	"time"

	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
)

// Limiter answers whether a key may proceed.
type Limiter struct {
	cache  cache.Client
	limit  int
	window time.Duration
}

// New builds a limiter allowing limit hits per window per key.
func New(c cache.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cache: c, limit: limit, window: window}
}

// Allow records a hit for key and reports whether it stays within the limit.
// Store failures fail open: rejecting logins because the cache hiccuped is
// worse than letting a burst through.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	bucket := "rate:" + key + ":" + strconv.FormatInt(time.Now().Unix()/int64(l.window.Seconds()), 10)

	raw, err := l.cache.Get(ctx, bucket)
	count := 0
	switch {
	case err == nil:
		count, _ = strconv.Atoi(raw)
	case !cache.IsNotFound(err):
		logger.From(ctx).Warn("rate-limit read failed", logger.Err(err))
		return true
	}

	if count >= l.limit {
		return false
	}
	if err := l.cache.Set(ctx, bucket, strconv.Itoa(count+1), l.window); err != nil {
		logger.From(ctx).Warn("rate-limit write failed", logger.Err(err))
	}
	return true
}
