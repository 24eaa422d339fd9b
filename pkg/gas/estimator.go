// Package gas scores order complexity into a gas-limit multiplier and
// combines it with fee data into a full quote. The scoring coefficients
// are fixed business rules; do not recalibrate them.
package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/limitrelay/limitrelay/pkg/book"
)

// FeeReader supplies live network fee data. Implemented by the chain
// client; nil fields mean the reader has no opinion for that field.
type FeeReader interface {
	CurrentFeeData(ctx context.Context) (FeeData, error)
}

type FeeData struct {
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
}

// Overrides are caller-supplied fee values that take precedence over live
// data, independently per field.
type Overrides struct {
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
}

// Estimate is a full fee quote for one order execution.
type Estimate struct {
	GasLimit             uint64
	Multiplier           float64
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
	TotalCost            *big.Int // GasLimit * GasPrice, wei
}

// largeAmountUnits is the fromAmount above which an order is scored as
// large (in the asset's smallest unit).
var largeAmountUnits = big.NewInt(1_000_000)

// Multiplier computes the gas-limit multiplier for an order:
// 1.0 base + 0.2 flat + 0.3 for large amounts + 0.2 per route hop past
// two + 0.1 when strategy data is attached, capped at 2.0. The result is
// always within [1.2, 2.0].
func Multiplier(o *book.Order) float64 {
	m := 1.0 + 0.2

	if amt, ok := new(big.Int).SetString(o.FromAmount, 10); ok && amt.Cmp(largeAmountUnits) > 0 {
		m += 0.3
	}
	if hops := len(o.Route); hops > 2 {
		m += 0.2 * float64(hops-2)
	}
	if o.Strategy != nil {
		m += 0.1
	}

	if m > 2.0 {
		m = 2.0
	}
	return m
}

// Estimator produces fee quotes. Reads the network only when neither the
// caller override nor pre-supplied fee data covers a field.
type Estimator struct {
	BaseGasLimit uint64
	Reader       FeeReader // may be nil when fallback constants suffice

	// Static fallback tier.
	FallbackGasPrice    *big.Int
	FallbackPriorityFee *big.Int
	FallbackMaxFee      *big.Int
}

// Quote builds the estimate for an order. Precedence per fee field:
// override, then live reader data, then the static fallback. With full
// overrides no network call is made.
func (e *Estimator) Quote(ctx context.Context, o *book.Order, ov Overrides) (Estimate, error) {
	mult := Multiplier(o)
	est := Estimate{
		Multiplier: mult,
		GasLimit:   uint64(float64(e.BaseGasLimit) * mult),
	}

	est.GasPrice = ov.GasPrice
	est.MaxPriorityFeePerGas = ov.MaxPriorityFeePerGas
	est.MaxFeePerGas = ov.MaxFeePerGas

	if (est.GasPrice == nil || est.MaxPriorityFeePerGas == nil || est.MaxFeePerGas == nil) && e.Reader != nil {
		live, err := e.Reader.CurrentFeeData(ctx)
		if err != nil {
			return Estimate{}, fmt.Errorf("fee data: %w", err)
		}
		if est.GasPrice == nil {
			est.GasPrice = live.GasPrice
		}
		if est.MaxPriorityFeePerGas == nil {
			est.MaxPriorityFeePerGas = live.MaxPriorityFeePerGas
		}
		if est.MaxFeePerGas == nil {
			est.MaxFeePerGas = live.MaxFeePerGas
		}
	}

	if est.GasPrice == nil {
		est.GasPrice = e.FallbackGasPrice
	}
	if est.MaxPriorityFeePerGas == nil {
		est.MaxPriorityFeePerGas = e.FallbackPriorityFee
	}
	if est.MaxFeePerGas == nil {
		est.MaxFeePerGas = e.FallbackMaxFee
	}

	if est.GasPrice == nil {
		return Estimate{}, fmt.Errorf("no gas price available for quote")
	}

	est.TotalCost = new(big.Int).Mul(new(big.Int).SetUint64(est.GasLimit), est.GasPrice)
	return est, nil
}
