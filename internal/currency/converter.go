package currency

import (
	"context"
	"errors"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Quote is a resolved conversion rate.
type Quote struct {
	Rate     decimal.Decimal
	Fallback bool
	Cached   bool
}

// Options configures a Converter.
type Options struct {
	From     string
	To       string
	Fallback decimal.Decimal
	// Cache is optional; nil disables caching.
	Cache    *redis.Client
	CacheTTL time.Duration
}

// Converter resolves the source to display currency rate. It never fails: when the
// rate source is unavailable the configured fallback rate is returned and flagged.
type Converter struct {
	source   models.RateSource
	from     string
	to       string
	fallback decimal.Decimal
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewConverter creates a Converter over the given rate source.
func NewConverter(source models.RateSource, opts Options) *Converter {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Hour
	}
	return &Converter{
		source:   source,
		from:     opts.From,
		to:       opts.To,
		fallback: opts.Fallback,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   log.With().Str("component", "currency").Logger(),
	}
}

func (c *Converter) cacheKey() string {
	return "fx:" + c.from + ":" + c.to
}

// Quote returns the current rate, consulting the cache first.
func (c *Converter) Quote(ctx context.Context) Quote {
	if c.cache != nil {
		val, err := c.cache.Get(ctx, c.cacheKey()).Result()
		switch {
		case err == nil:
			if rate, perr := decimal.NewFromString(val); perr == nil && rate.IsPositive() {
				return Quote{Rate: rate, Cached: true}
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Warn().Err(err).Msg("Rate cache unavailable")
		}
	}

	rate, err := c.source.Rate(ctx, c.from, c.to)
	if err != nil {
		c.logger.Warn().Err(err).Str("from", c.from).Str("to", c.to).
			Str("fallback", c.fallback.String()).Msg("Using fallback conversion rate")
		return Quote{Rate: c.fallback, Fallback: true}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, c.cacheKey(), rate.String(), c.cacheTTL).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache rate")
		}
	}
	return Quote{Rate: rate}
}

// To returns the display currency code.
func (c *Converter) To() string { return c.to }
