package oracle

import (
	"context"
	"log/slog"
	"time"

	"ladderbot/internal/domain"
)

// CachedOracle consults a shared price cache before falling back to the
// underlying oracle. Cache entries older than the staleness window are
// ignored; a fresh REST price is written back on fallback.
type CachedOracle struct {
	inner     domain.PriceOracle
	cache     domain.PriceCache
	staleness time.Duration
	logger    *slog.Logger
}

// NewCachedOracle wraps inner with cache lookups. staleness bounds how old a
// cached quote may be before it is bypassed.
func NewCachedOracle(inner domain.PriceOracle, cache domain.PriceCache, staleness time.Duration, logger *slog.Logger) *CachedOracle {
	return &CachedOracle{
		inner:     inner,
		cache:     cache,
		staleness: staleness,
		logger:    logger.With(slog.String("component", "cached_oracle")),
	}
}

// GetPrice returns a cached quote when fresh enough, otherwise delegates to
// the inner oracle. Cache failures are logged and never surfaced; the loop
// only cares whether a usable price was obtained.
func (o *CachedOracle) GetPrice(ctx context.Context, pair string) (float64, error) {
	if price, at, err := o.cache.GetPrice(ctx, pair); err == nil && price > 0 {
		if time.Since(at) <= o.staleness {
			return price, nil
		}
	} else if err != nil {
		o.logger.Debug("price cache miss", slog.String("pair", pair), slog.String("error", err.Error()))
	}

	price, err := o.inner.GetPrice(ctx, pair)
	if err != nil {
		return 0, err
	}
	if err := o.cache.SetPrice(ctx, pair, price, time.Now()); err != nil {
		o.logger.Warn("price cache write failed", slog.String("pair", pair), slog.String("error", err.Error()))
	}
	return price, nil
}
