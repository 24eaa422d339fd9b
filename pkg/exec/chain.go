package exec

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/limitrelay/limitrelay/pkg/gas"
)

// Receipt is the on-chain confirmation record for a broadcast transaction.
type Receipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Success           bool
	Confirmations     uint64
}

// Broadcaster is the node-facing capability the coordinator consumes:
// nonce reads, raw broadcast, receipt lookups and live fee data. Every
// call is bounded by the configured per-call timeout.
type Broadcaster interface {
	gas.FeeReader
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	// WaitForReceipt blocks until the transaction has the requested
	// number of confirmations or the context expires.
	WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (Receipt, error)
	// GetReceipt returns nil (not an error) when the node has no
	// receipt for the hash yet.
	GetReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// EthBroadcaster implements Broadcaster over a JSON-RPC ethclient.
type EthBroadcaster struct {
	client      *ethclient.Client
	callTimeout time.Duration
	pollEvery   time.Duration
}

func NewEthBroadcaster(rpcURL string, callTimeout time.Duration) (*EthBroadcaster, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &EthBroadcaster{client: client, callTimeout: callTimeout, pollEvery: 2 * time.Second}, nil
}

func (b *EthBroadcaster) Close() { b.client.Close() }

func (b *EthBroadcaster) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.callTimeout)
}

func (b *EthBroadcaster) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.client.PendingNonceAt(ctx, addr)
}

func (b *EthBroadcaster) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.client.SendTransaction(ctx, tx)
}

func (b *EthBroadcaster) CurrentFeeData(ctx context.Context) (gas.FeeData, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	price, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return gas.FeeData{}, fmt.Errorf("gas price: %w", err)
	}
	tip, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		return gas.FeeData{}, fmt.Errorf("gas tip: %w", err)
	}

	// maxFee = 2 * base-ish price + tip, the usual headroom rule
	maxFee := new(big.Int).Add(new(big.Int).Mul(price, big.NewInt(2)), tip)
	return gas.FeeData{GasPrice: price, MaxPriorityFeePerGas: tip, MaxFeePerGas: maxFee}, nil
}

func (b *EthBroadcaster) GetReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	cctx, cancel := b.withTimeout(ctx)
	defer cancel()

	rcpt, err := b.client.TransactionReceipt(cctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("receipt lookup: %w", err)
	}

	head, err := b.headNumber(ctx)
	if err != nil {
		return nil, err
	}
	return b.translate(rcpt, head), nil
}

func (b *EthBroadcaster) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (Receipt, error) {
	ticker := time.NewTicker(b.pollEvery)
	defer ticker.Stop()

	for {
		r, err := b.GetReceipt(ctx, hash)
		if err != nil {
			return Receipt{}, err
		}
		if r != nil && r.Confirmations >= confirmations {
			return *r, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *EthBroadcaster) headNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	head, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("head lookup: %w", err)
	}
	return head.Number.Uint64(), nil
}

func (b *EthBroadcaster) translate(r *types.Receipt, head uint64) *Receipt {
	block := r.BlockNumber.Uint64()
	confs := uint64(0)
	if head >= block {
		confs = head - block + 1
	}
	return &Receipt{
		TxHash:            r.TxHash,
		BlockNumber:       block,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
		Success:           r.Status == types.ReceiptStatusSuccessful,
		Confirmations:     confs,
	}
}
