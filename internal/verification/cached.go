package verification

import (
	"context"
	"log/slog"
	"time"

	"lexlink/internal/platform/metrics"
)

// CachedVerifier answers from the cache when it can and otherwise asks next.
// Cache failures degrade to a direct lookup.
type CachedVerifier struct {
	next    Verifier
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewCachedVerifier(next Verifier, cache Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *CachedVerifier {
	return &CachedVerifier{next: next, cache: cache, ttl: ttl, logger: logger, metrics: m}
}

func (v *CachedVerifier) Verify(ctx context.Context, req Request) (Result, error) {
	key := cacheKey(req)

	cached, ok, err := v.cache.Get(ctx, key)
	switch {
	case err != nil:
		v.metrics.IncVerificationLookup("cache_error")
		v.logger.WarnContext(ctx, "verification cache read failed", "error", err)
	case ok:
		v.metrics.IncVerificationLookup("hit")
		return cached, nil
	default:
		v.metrics.IncVerificationLookup("miss")
	}

	result, err := v.next.Verify(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if err := v.cache.Set(ctx, key, result, v.ttl); err != nil {
		v.logger.WarnContext(ctx, "verification cache write failed", "error", err)
	}
	return result, nil
}
