// Package feed supplies market data to the strategy engine: spot prices
// per asset pair and a coarse market snapshot (trend + volatility).
package feed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type Trend string

const (
	Bullish Trend = "bullish"
	Bearish Trend = "bearish"
	Neutral Trend = "neutral"
)

// Snapshot is a coarse view of current market conditions for one asset.
type Snapshot struct {
	Trend      Trend
	Volatility float64 // 0..1
}

// MarketData is the adapter consumed by the strategy engine. Both calls
// are suspension points and must respect the context deadline.
type MarketData interface {
	CurrentPrice(ctx context.Context, base, quote string) (decimal.Decimal, error)
	MarketSnapshot(ctx context.Context, asset string) (Snapshot, error)
}

// ErrNoQuote is returned when the adapter has no usable price for a pair.
var ErrNoQuote = fmt.Errorf("no quote available")
