package exec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/crypto"
)

// exchangeABI is the minimum surface of the external exchange protocol
// this coordinator calls: one execution entry point (plus a route-aware
// variant) and one cancellation entry point.
const exchangeABI = `[
	{"type":"function","name":"executeOrder","stateMutability":"nonpayable","inputs":[
		{"name":"fromAsset","type":"string"},
		{"name":"toAsset","type":"string"},
		{"name":"amountIn","type":"uint256"},
		{"name":"minAmountOut","type":"uint256"},
		{"name":"owner","type":"address"}],"outputs":[]},
	{"type":"function","name":"executeRouteOrder","stateMutability":"nonpayable","inputs":[
		{"name":"fromAsset","type":"string"},
		{"name":"toAsset","type":"string"},
		{"name":"amountIn","type":"uint256"},
		{"name":"minAmountOut","type":"uint256"},
		{"name":"owner","type":"address"},
		{"name":"route","type":"tuple[]","components":[
			{"name":"fromAsset","type":"string"},
			{"name":"toAsset","type":"string"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOut","type":"uint256"},
			{"name":"protocol","type":"string"}]}],"outputs":[]},
	{"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[
		{"name":"orderDigest","type":"bytes32"}],"outputs":[]}
]`

// abiHop mirrors the route tuple type for ABI packing.
type abiHop struct {
	FromAsset string   `abi:"fromAsset"`
	ToAsset   string   `abi:"toAsset"`
	AmountIn  *big.Int `abi:"amountIn"`
	AmountOut *big.Int `abi:"amountOut"`
	Protocol  string   `abi:"protocol"`
}

// Encoder turns order terms into (contract address, calldata) pairs for
// the exchange protocol, resolved per target chain id.
type Encoder struct {
	abi       abi.ABI
	contracts map[int64]common.Address // chain id -> exchange contract
}

func NewEncoder(contracts map[int64]common.Address) (*Encoder, error) {
	parsed, err := abi.JSON(strings.NewReader(exchangeABI))
	if err != nil {
		return nil, fmt.Errorf("parse exchange abi: %w", err)
	}
	return &Encoder{abi: parsed, contracts: contracts}, nil
}

func (e *Encoder) contractFor(chainID int64) (common.Address, error) {
	addr, ok := e.contracts[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("no exchange contract configured for chain %d", chainID)
	}
	return addr, nil
}

// EncodeExecution builds the calldata for executing the order. Orders with
// a route use the route-aware entry point.
func (e *Encoder) EncodeExecution(o book.Order) (common.Address, []byte, error) {
	to, err := e.contractFor(o.ChainID)
	if err != nil {
		return common.Address{}, nil, err
	}

	amountIn, err := parseUnits(o.FromAmount)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("fromAmount: %w", err)
	}
	minOut, err := parseUnits(o.ToAmount)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("toAmount: %w", err)
	}
	owner := common.HexToAddress(o.Owner)

	if len(o.Route) == 0 {
		data, err := e.abi.Pack("executeOrder", o.FromAsset, o.ToAsset, amountIn, minOut, owner)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("pack executeOrder: %w", err)
		}
		return to, data, nil
	}

	hops := make([]abiHop, len(o.Route))
	for i, h := range o.Route {
		in, err := parseUnits(h.InAmount)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("route hop %d in: %w", i, err)
		}
		out, err := parseUnits(h.OutAmount)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("route hop %d out: %w", i, err)
		}
		hops[i] = abiHop{
			FromAsset: h.FromAsset,
			ToAsset:   h.ToAsset,
			AmountIn:  in,
			AmountOut: out,
			Protocol:  h.Protocol,
		}
	}

	data, err := e.abi.Pack("executeRouteOrder", o.FromAsset, o.ToAsset, amountIn, minOut, owner, hops)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack executeRouteOrder: %w", err)
	}
	return to, data, nil
}

// EncodeCancellation builds the calldata for cancelling the order on the
// protocol side. The order is identified by the keccak digest of its id.
func (e *Encoder) EncodeCancellation(o book.Order) (common.Address, []byte, error) {
	to, err := e.contractFor(o.ChainID)
	if err != nil {
		return common.Address{}, nil, err
	}

	digest := crypto.OrderDigest(o.ID)
	data, err := e.abi.Pack("cancelOrder", digest)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack cancelOrder: %w", err)
	}
	return to, data, nil
}

func parseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("%q is not a positive integer amount", s)
	}
	return v, nil
}
