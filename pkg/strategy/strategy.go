// Package strategy evaluates trigger rules attached to stored orders:
// price-conditional submission, dynamic repricing, time gates and market
// sentiment gates. Evaluation is driven entirely by callers; the engine
// runs no timers of its own.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/feed"
	"github.com/limitrelay/limitrelay/pkg/gas"
	"github.com/limitrelay/limitrelay/pkg/util"
)

// ErrAdjustmentLimit is returned once a dynamic order has used all of its
// repricing steps. Terminal for the order's strategy; not retryable.
var ErrAdjustmentLimit = errors.New("adjustment limit exceeded")

// Submitter is the order-submission path the engine delegates to when a
// conditional trigger fires. Implemented by the execution coordinator.
type Submitter interface {
	ExecuteOnchain(ctx context.Context, orderID string, ov gas.Overrides) (book.Order, error)
}

// OutcomeKind tags the result of one evaluation. "Not met" outcomes are
// expected control flow, not errors: callers may re-evaluate indefinitely.
type OutcomeKind string

const (
	// Triggered means the rule fired; for conditional strategies the
	// order was also submitted on-chain.
	Triggered OutcomeKind = "triggered"
	// NotMet means the rule's condition does not currently hold.
	NotMet OutcomeKind = "not_met"
	// Repriced means a dynamic strategy advanced one adjustment step.
	Repriced OutcomeKind = "repriced"
)

type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Order  book.Order // current record after evaluation
	Score  float64    // sentiment score, market evaluations only
}

// Engine evaluates strategies against the order store.
type Engine struct {
	store  *book.Store
	market feed.MarketData
	submit Submitter
	clock  util.Clock
	logger *zap.SugaredLogger
}

func NewEngine(store *book.Store, market feed.MarketData, submit Submitter, clock util.Clock, logger *zap.SugaredLogger) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Engine{store: store, market: market, submit: submit, clock: clock, logger: logger}
}

// EvaluateConditional checks the stored trigger against the current market
// price and submits the order when it fires. The price boundary is
// inclusive: at price == trigger the order is eligible.
func (e *Engine) EvaluateConditional(ctx context.Context, orderID string) (Outcome, error) {
	o, err := e.store.Get(orderID)
	if err != nil {
		return Outcome{}, err
	}
	cond, ok := o.Strategy.(book.ConditionalStrategy)
	if !ok {
		return Outcome{}, fmt.Errorf("order %s has no conditional strategy", orderID)
	}

	price, err := e.market.CurrentPrice(ctx, o.FromAsset, o.ToAsset)
	if err != nil {
		return Outcome{}, fmt.Errorf("price read: %w", err)
	}

	eligible := false
	switch cond.Condition {
	case book.Above:
		eligible = price.GreaterThanOrEqual(cond.TriggerPrice)
	case book.Below:
		eligible = price.LessThanOrEqual(cond.TriggerPrice)
	default:
		return Outcome{}, fmt.Errorf("unknown trigger condition %q", cond.Condition)
	}

	if !eligible {
		return Outcome{
			Kind:   NotMet,
			Reason: fmt.Sprintf("price %s has not crossed trigger %s (%s)", price, cond.TriggerPrice, cond.Condition),
			Order:  o,
		}, nil
	}

	e.logger.Infow("conditional_trigger_fired",
		"order", orderID, "price", price.String(), "trigger", cond.TriggerPrice.String(), "condition", cond.Condition)

	executed, err := e.submit.ExecuteOnchain(ctx, orderID, gas.Overrides{})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: Triggered, Reason: "trigger met, order executed", Order: executed}, nil
}

// EvaluateDynamic advances the order one repricing step and persists the
// new limit price. It never submits on-chain by itself.
func (e *Engine) EvaluateDynamic(ctx context.Context, orderID string) (Outcome, error) {
	o, err := e.store.Get(orderID)
	if err != nil {
		return Outcome{}, err
	}
	dyn, ok := o.Strategy.(book.DynamicStrategy)
	if !ok {
		return Outcome{}, fmt.Errorf("order %s has no dynamic strategy", orderID)
	}

	if dyn.CurrentAdjustment >= dyn.MaxAdjustments {
		return Outcome{}, fmt.Errorf("%w: %d of %d used", ErrAdjustmentLimit, dyn.CurrentAdjustment, dyn.MaxAdjustments)
	}

	dyn.CurrentAdjustment++
	newPrice := PriceAtStep(dyn.BasePrice, dyn.AdjustmentPercent, dyn.CurrentAdjustment)

	o.Strategy = dyn
	o.ToAmount = newPrice.String()
	if err := e.store.Update(orderID, o); err != nil {
		return Outcome{}, err
	}

	e.logger.Infow("dynamic_repriced",
		"order", orderID, "step", dyn.CurrentAdjustment, "price", newPrice.String())

	updated, err := e.store.Get(orderID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:   Repriced,
		Reason: fmt.Sprintf("adjustment %d of %d applied", dyn.CurrentAdjustment, dyn.MaxAdjustments),
		Order:  updated,
	}, nil
}

// PriceAtStep computes basePrice * (1 + pct/100)^k exactly in decimal
// arithmetic. The compounding shape is a fixed business rule.
func PriceAtStep(base, pct decimal.Decimal, k int) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
	return base.Mul(factor.Pow(decimal.NewFromInt(int64(k))))
}

// EvaluateTime reports whether the time gate has opened. The threshold is
// accepted in seconds or millis and normalized.
func (e *Engine) EvaluateTime(ctx context.Context, orderID string, threshold int64) (Outcome, error) {
	o, err := e.store.Get(orderID)
	if err != nil {
		return Outcome{}, err
	}

	threshold = book.NormalizeDeadline(threshold)
	now := util.NowMillis(e.clock)
	if now < threshold {
		return Outcome{
			Kind:   NotMet,
			Reason: fmt.Sprintf("time threshold not reached (%dms remaining)", threshold-now),
			Order:  o,
		}, nil
	}
	return Outcome{Kind: Triggered, Reason: "time threshold reached", Order: o}, nil
}

// EvaluateMarket scores current sentiment for the order's base asset and
// reports whether it falls in the band for the target condition:
// bullish > 0.6, bearish < 0.4, neutral in [0.4, 0.6].
func (e *Engine) EvaluateMarket(ctx context.Context, orderID string, target feed.Trend) (Outcome, error) {
	o, err := e.store.Get(orderID)
	if err != nil {
		return Outcome{}, err
	}

	snap, err := e.market.MarketSnapshot(ctx, o.FromAsset)
	if err != nil {
		return Outcome{}, fmt.Errorf("market snapshot: %w", err)
	}

	score := SentimentScore(snap)

	eligible := false
	switch target {
	case feed.Bullish:
		eligible = score > 0.6
	case feed.Bearish:
		eligible = score < 0.4
	case feed.Neutral:
		eligible = score >= 0.4 && score <= 0.6
	default:
		return Outcome{}, fmt.Errorf("unknown market condition %q", target)
	}

	out := Outcome{Order: o, Score: score}
	if eligible {
		out.Kind = Triggered
		out.Reason = fmt.Sprintf("market is %s (score %.2f)", target, score)
	} else {
		out.Kind = NotMet
		out.Reason = fmt.Sprintf("market score %.2f outside %s band", score, target)
	}
	return out, nil
}

// SentimentScore maps a snapshot to [0,1]: the trend sets the base level
// (bullish 0.8, neutral 0.5, bearish 0.2) and volatility discounts the
// signal toward the 0.5 midpoint.
func SentimentScore(s Snapshot) float64 {
	base := 0.5
	switch s.Trend {
	case feed.Bullish:
		base = 0.8
	case feed.Bearish:
		base = 0.2
	}
	vol := s.Volatility
	if vol < 0 {
		vol = 0
	}
	if vol > 1 {
		vol = 1
	}
	return base + (0.5-base)*vol
}

// Snapshot aliases the feed type so scoring helpers read naturally here.
type Snapshot = feed.Snapshot
