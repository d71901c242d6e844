package currency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRates struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (s *stubRates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	s.calls++
	return s.rate, s.err
}

func options(cache *redis.Client) Options {
	return Options{
		From:     "USD",
		To:       "GBP",
		Fallback: decimal.RequireFromString("0.78"),
		Cache:    cache,
		CacheTTL: time.Minute,
	}
}

func TestQuoteLive(t *testing.T) {
	src := &stubRates{rate: decimal.RequireFromString("0.79")}
	q := NewConverter(src, options(nil)).Quote(context.Background())

	assert.Equal(t, "0.79", q.Rate.String())
	assert.False(t, q.Fallback)
}

func TestQuoteFallbackOnFailure(t *testing.T) {
	src := &stubRates{err: errors.Join(models.ErrExternalService, errors.New("timeout"))}
	conv := NewConverter(src, options(nil))

	q := conv.Quote(context.Background())

	assert.True(t, q.Fallback)
	assert.Equal(t, "0.78", q.Rate.String())
	assert.Equal(t, "78.00", models.Convert(decimal.NewFromInt(100), q.Rate).StringFixed(2))
}

func TestQuoteUsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	src := &stubRates{rate: decimal.RequireFromString("0.8")}
	conv := NewConverter(src, options(rdb))

	first := conv.Quote(context.Background())
	second := conv.Quote(context.Background())

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, "0.8", second.Rate.String())
	assert.Equal(t, 1, src.calls)

	ttl := mr.TTL("fx:USD:GBP")
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	conv.Quote(context.Background())
	assert.Equal(t, 2, src.calls)
}

func TestQuoteCacheDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	src := &stubRates{rate: decimal.RequireFromString("0.81")}
	q := NewConverter(src, options(rdb)).Quote(context.Background())

	require.False(t, q.Fallback)
	assert.Equal(t, "0.81", q.Rate.String())
}
