package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Straits-AI/straits-agents-sub001/metrics"
	errs "github.com/Straits-AI/straits-agents-sub001/models/errors"
	"github.com/Straits-AI/straits-agents-sub001/storage"
)

const quotaKeyPrefix = "quota:"

// Quota enforces the per-caller submission limit. Counters live in the
// shared store so every instance sees the same window; the only atomicity
// relied on is the store's per-key increment-with-expiry.
type Quota struct {
	logger    zerolog.Logger
	store     storage.Store
	limit     int64
	window    time.Duration
	collector metrics.Collector
}

func NewQuota(
	logger zerolog.Logger,
	store storage.Store,
	limit int,
	window time.Duration,
	collector metrics.Collector,
) *Quota {
	return &Quota{
		logger:    logger.With().Str("component", "quota").Logger(),
		store:     store,
		limit:     int64(limit),
		window:    window,
		collector: collector,
	}
}

// Allow counts one submission for the caller and rejects it with
// ErrRateLimit once the window's quota is exhausted.
func (q *Quota) Allow(ctx context.Context, caller string) error {
	count, err := q.store.Increment(ctx, quotaKeyPrefix+caller, q.window)
	if err != nil {
		return err
	}

	if count > q.limit {
		q.logger.Debug().Str("caller", caller).Int64("count", count).Msg("rate limit reached")
		q.collector.RateLimited(caller)
		return errs.ErrRateLimit
	}

	return nil
}
