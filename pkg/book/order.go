package book

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Status string

const (
	Pending   Status = "PENDING"
	Executed  Status = "EXECUTED"
	Cancelled Status = "CANCELLED"
	Expired   Status = "EXPIRED"
)

// Terminal reports whether no further status transition is allowed.
func (s Status) Terminal() bool { return s != Pending }

type TriggerCondition string

const (
	Above TriggerCondition = "above"
	Below TriggerCondition = "below"
)

// StrategyData is the optional rule attached to an order beyond its plain
// limit terms. Exactly one of the concrete variants (or nil for a plain
// order) is held by Order.Strategy; consumers switch exhaustively on the
// concrete type.
type StrategyData interface {
	strategyKind() string
	Kind() string
}

// ConditionalStrategy submits the order once the market price crosses the
// trigger. The boundary is inclusive on both conditions.
type ConditionalStrategy struct {
	TriggerPrice decimal.Decimal
	Condition    TriggerCondition
	ExpiryTime   int64 // epoch millis
}

func (ConditionalStrategy) strategyKind() string { return "conditional" }
func (ConditionalStrategy) Kind() string         { return "conditional" }

// DynamicStrategy reprices the order on each evaluation step.
// Price at step k is BasePrice * (1 + AdjustmentPercent/100)^k.
type DynamicStrategy struct {
	BasePrice          decimal.Decimal
	AdjustmentPercent  decimal.Decimal // -50..50
	AdjustmentInterval int64           // seconds, 60..3600
	MaxAdjustments     int
	CurrentAdjustment  int // the only mutable field
}

func (DynamicStrategy) strategyKind() string { return "dynamic" }
func (DynamicStrategy) Kind() string         { return "dynamic" }

// RouteHop is one leg of a multi-hop exchange route.
type RouteHop struct {
	FromAsset string
	ToAsset   string
	InAmount  string
	OutAmount string
	Protocol  string
}

// Order is a user's request to exchange FromAmount of FromAsset for at
// least ToAmount of ToAsset by Deadline. Amounts are positive decimal
// strings in the asset's smallest unit.
type Order struct {
	ID         string
	FromAsset  string
	ToAsset    string
	FromAmount string
	ToAmount   string // limit price expressed as minimum output
	Side       Side
	Owner      string
	ChainID    int64

	CreatedAt int64 // epoch millis
	Deadline  int64 // epoch millis, normalized at ingestion
	Status    Status

	// Populated only once status leaves PENDING.
	TxHash      string
	GasEstimate uint64
	GasPrice    string // effective gas price in wei

	Strategy StrategyData // nil for a plain limit order
	Route    []RouteHop   // empty for direct orders
}

// millisThreshold separates epoch seconds from epoch millis: any value
// below it is interpreted as seconds. 1e12 ms is Sep 2001, 1e12 s is
// year 33658, so the split is unambiguous for realistic deadlines.
const millisThreshold = 1_000_000_000_000

// NormalizeDeadline converts a deadline given in either epoch seconds or
// epoch millis to the internal millis representation.
func NormalizeDeadline(v int64) int64 {
	if v > 0 && v < millisThreshold {
		return v * 1000
	}
	return v
}

// Validate returns human-readable reasons the order is malformed. An empty
// slice means the order is acceptable.
func (o *Order) Validate() []string {
	var reasons []string
	if o.FromAsset == "" {
		reasons = append(reasons, "fromAsset is required")
	}
	if o.ToAsset == "" {
		reasons = append(reasons, "toAsset is required")
	}
	if o.FromAsset != "" && o.FromAsset == o.ToAsset {
		reasons = append(reasons, "fromAsset and toAsset must differ")
	}
	if o.Owner == "" {
		reasons = append(reasons, "ownerAddress is required")
	}
	if o.Side != Buy && o.Side != Sell {
		reasons = append(reasons, fmt.Sprintf("side must be %q or %q", Buy, Sell))
	}
	if !positiveDecimal(o.FromAmount) {
		reasons = append(reasons, "fromAmount must be a positive decimal")
	}
	if !positiveDecimal(o.ToAmount) {
		reasons = append(reasons, "toAmount must be a positive decimal")
	}
	return reasons
}

func positiveDecimal(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsPositive()
}

// NewOrderID builds a unique id without coordination: epoch-millis prefix
// for rough creation ordering plus a random suffix for uniqueness.
func NewOrderID(nowMillis int64) string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the process has bigger problems
		panic(fmt.Errorf("order id entropy: %w", err))
	}
	return fmt.Sprintf("ord-%d-%s", nowMillis, hex.EncodeToString(buf[:]))
}
