package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/util"
)

func parseDec(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// CreateConditional validates the trigger parameters, attaches them to the
// order and inserts it. Returns the stored record.
func (e *Engine) CreateConditional(o book.Order, p ConditionalParams) (book.Order, error) {
	now := util.NowMillis(e.clock)
	if reasons := ValidateConditional(p, now); len(reasons) > 0 {
		return book.Order{}, &book.ValidationError{Reasons: reasons}
	}

	trigger, _ := decimal.NewFromString(p.TriggerPrice)
	o.Strategy = book.ConditionalStrategy{
		TriggerPrice: trigger,
		Condition:    p.Condition,
		ExpiryTime:   book.NormalizeDeadline(p.ExpiryTime),
	}
	if o.Deadline == 0 {
		o.Deadline = p.ExpiryTime
	}

	id, err := e.store.Create(o)
	if err != nil {
		return book.Order{}, err
	}
	return e.store.Get(id)
}

// CreateDynamic validates the adjustment schedule, attaches it to the
// order and inserts it.
func (e *Engine) CreateDynamic(o book.Order, p DynamicParams) (book.Order, error) {
	if reasons := ValidateDynamic(p); len(reasons) > 0 {
		return book.Order{}, &book.ValidationError{Reasons: reasons}
	}

	base, _ := decimal.NewFromString(p.BasePrice)
	pct, _ := decimal.NewFromString(p.AdjustmentPercent)
	o.Strategy = book.DynamicStrategy{
		BasePrice:          base,
		AdjustmentPercent:  pct,
		AdjustmentInterval: p.AdjustmentInterval,
		MaxAdjustments:     p.MaxAdjustments,
	}
	if o.ToAmount == "" {
		o.ToAmount = base.String()
	}

	id, err := e.store.Create(o)
	if err != nil {
		return book.Order{}, err
	}
	return e.store.Get(id)
}
