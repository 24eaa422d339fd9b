package strategy

import (
	"fmt"

	"github.com/limitrelay/limitrelay/pkg/book"
)

// ConditionalParams are the creation-time inputs for a conditional order.
type ConditionalParams struct {
	TriggerPrice string
	Condition    book.TriggerCondition
	ExpiryTime   int64 // epoch seconds or millis
}

// DynamicParams are the creation-time inputs for a dynamic-pricing order.
type DynamicParams struct {
	BasePrice          string
	AdjustmentPercent  string
	AdjustmentInterval int64 // seconds
	MaxAdjustments     int
}

// ValidateConditional returns the reasons the parameters are unacceptable.
// nowMillis is the reference point for the expiry check.
func ValidateConditional(p ConditionalParams, nowMillis int64) []string {
	var reasons []string

	price, err := parseDec(p.TriggerPrice)
	if err != nil || !price.IsPositive() {
		reasons = append(reasons, "triggerPrice must be a positive decimal")
	}
	if p.Condition != book.Above && p.Condition != book.Below {
		reasons = append(reasons, fmt.Sprintf("triggerCondition must be %q or %q", book.Above, book.Below))
	}
	if book.NormalizeDeadline(p.ExpiryTime) <= nowMillis {
		reasons = append(reasons, "expiryTime must be in the future")
	}
	return reasons
}

// ValidateDynamic returns the reasons the parameters are unacceptable.
func ValidateDynamic(p DynamicParams) []string {
	var reasons []string

	base, err := parseDec(p.BasePrice)
	if err != nil || !base.IsPositive() {
		reasons = append(reasons, "basePrice must be a positive decimal")
	}
	pct, err := parseDec(p.AdjustmentPercent)
	if err != nil {
		reasons = append(reasons, "priceAdjustmentPercent must be a decimal")
	} else if pct.LessThan(dec(-50)) || pct.GreaterThan(dec(50)) {
		reasons = append(reasons, "priceAdjustmentPercent must be between -50 and 50")
	}
	if p.AdjustmentInterval < 60 || p.AdjustmentInterval > 3600 {
		reasons = append(reasons, "adjustmentInterval must be between 60 and 3600 seconds")
	}
	if p.MaxAdjustments < 1 || p.MaxAdjustments > 10 {
		reasons = append(reasons, "maxAdjustments must be between 1 and 10")
	}
	return reasons
}
