package api

// Request/response shapes for the REST surface. Marshaling only; all
// business rules live in book, strategy and exec.

type routeHopReq struct {
	FromAsset string `json:"fromAsset"`
	ToAsset   string `json:"toAsset"`
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
	Protocol  string `json:"protocol"`
}

type createOrderReq struct {
	FromAsset  string        `json:"fromAsset"`
	ToAsset    string        `json:"toAsset"`
	FromAmount string        `json:"fromAmount"`
	ToAmount   string        `json:"toAmount"`
	Side       string        `json:"side"`
	Owner      string        `json:"ownerAddress"`
	ChainID    int64         `json:"chainId"`
	Deadline   int64         `json:"deadline"` // epoch seconds or millis
	Route      []routeHopReq `json:"route,omitempty"`
}

type conditionalReq struct {
	createOrderReq
	TriggerPrice     string `json:"triggerPrice"`
	TriggerCondition string `json:"triggerCondition"`
	ExpiryTime       int64  `json:"expiryTime"`
}

type dynamicReq struct {
	createOrderReq
	BasePrice          string `json:"basePrice"`
	AdjustmentPercent  string `json:"priceAdjustmentPercent"`
	AdjustmentInterval int64  `json:"adjustmentInterval"`
	MaxAdjustments     int    `json:"maxAdjustments"`
}

type cancelReq struct {
	Owner string `json:"ownerAddress"`
}

type feeOverridesReq struct {
	GasPrice             string `json:"gasPrice,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
}

type executeReq struct {
	FeeOverrides feeOverridesReq `json:"feeOverrides"`
}

type evaluateReq struct {
	Kind            string `json:"kind"` // conditional, dynamic, time, market
	TimeThreshold   int64  `json:"timeThreshold,omitempty"`
	MarketCondition string `json:"marketCondition,omitempty"`
}

type orderResp struct {
	ID          string        `json:"orderId"`
	FromAsset   string        `json:"fromAsset"`
	ToAsset     string        `json:"toAsset"`
	FromAmount  string        `json:"fromAmount"`
	ToAmount    string        `json:"toAmount"`
	Side        string        `json:"side"`
	Owner       string        `json:"ownerAddress"`
	ChainID     int64         `json:"chainId"`
	CreatedAt   int64         `json:"createdAt"`
	Deadline    int64         `json:"deadline"`
	Status      string        `json:"status"`
	TxHash      string        `json:"txHash,omitempty"`
	GasEstimate uint64        `json:"gasEstimate,omitempty"`
	GasPrice    string        `json:"gasPrice,omitempty"`
	Strategy    string        `json:"strategy,omitempty"` // kind tag
	Route       []routeHopReq `json:"route,omitempty"`
}

type outcomeResp struct {
	Kind   string    `json:"outcome"`
	Reason string    `json:"reason"`
	Score  float64   `json:"score,omitempty"`
	Order  orderResp `json:"order"`
}

type estimateResp struct {
	GasLimit             uint64  `json:"gasLimit"`
	Multiplier           float64 `json:"multiplier"`
	GasPrice             string  `json:"gasPrice"`
	MaxPriorityFeePerGas string  `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         string  `json:"maxFeePerGas"`
	TotalCost            string  `json:"totalCost"`
}

type sweepResp struct {
	Expired int `json:"expired"`
}

type errorResp struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}
