// Package exec drives stored orders through gas estimation, transaction
// construction, signing, broadcast and confirmation against the external
// exchange protocol. The order store lock is never held across any of the
// network steps; only the final commit re-enters it.
package exec

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/crypto"
	"github.com/limitrelay/limitrelay/pkg/gas"
	"github.com/limitrelay/limitrelay/pkg/journal"
	"github.com/limitrelay/limitrelay/pkg/util"
)

// TxStatus is the caller-facing translation of a receipt lookup.
type TxStatus struct {
	TxHash        string `json:"txHash"`
	BlockNumber   uint64 `json:"blockNumber"`
	GasUsed       uint64 `json:"gasUsed"`
	GasPrice      string `json:"gasPrice"`
	Status        string `json:"status"` // "success" or "failed"
	Confirmations uint64 `json:"confirmations"`
}

type Coordinator struct {
	store         *book.Store
	estimator     *gas.Estimator
	encoder       *Encoder
	wallet        *crypto.Wallet
	chain         Broadcaster
	seq           *Sequencer
	jrnl          *journal.Journal // optional
	chainID       *big.Int
	confirmations uint64
	receiptWait   time.Duration
	clock         util.Clock
	logger        *zap.SugaredLogger
}

type Deps struct {
	Store         *book.Store
	Estimator     *gas.Estimator
	Encoder       *Encoder
	Wallet        *crypto.Wallet
	Chain         Broadcaster
	Journal       *journal.Journal
	ChainID       *big.Int
	Confirmations uint64
	ReceiptWait   time.Duration
	Clock         util.Clock
	Logger        *zap.SugaredLogger
}

func NewCoordinator(d Deps) *Coordinator {
	if d.Clock == nil {
		d.Clock = util.RealClock{}
	}
	return &Coordinator{
		store:         d.Store,
		estimator:     d.Estimator,
		encoder:       d.Encoder,
		wallet:        d.Wallet,
		chain:         d.Chain,
		seq:           NewSequencer(d.Wallet.Address(), d.Chain),
		jrnl:          d.Journal,
		chainID:       d.ChainID,
		confirmations: d.Confirmations,
		receiptWait:   d.ReceiptWait,
		clock:         d.Clock,
		logger:        d.Logger,
	}
}

// ExecuteOnchain moves a PENDING order to EXECUTED through the full
// pipeline. Infrastructure and on-chain failures leave the order PENDING;
// state failures are terminal for this call.
func (c *Coordinator) ExecuteOnchain(ctx context.Context, orderID string, ov gas.Overrides) (book.Order, error) {
	o, err := c.preflight(orderID)
	if err != nil {
		return book.Order{}, err
	}

	est, err := c.estimator.Quote(ctx, &o, ov)
	if err != nil {
		return book.Order{}, infraErr("gas estimation", errors.Join(ErrGasEstimation, err))
	}

	to, data, err := c.encoder.EncodeExecution(o)
	if err != nil {
		return book.Order{}, stateErr("encode execution", err)
	}

	rcpt, err := c.submit(ctx, orderID, "execute", to, data, est)
	if err != nil {
		return book.Order{}, err
	}

	if err := c.store.CommitExecution(orderID, book.Executed, rcpt.TxHash.Hex(), rcpt.GasUsed, rcpt.EffectiveGasPrice.String()); err != nil {
		return book.Order{}, stateErr("commit execution", err)
	}

	c.logger.Infow("order_executed",
		"order", orderID, "tx", rcpt.TxHash.Hex(), "block", rcpt.BlockNumber, "gas_used", rcpt.GasUsed)

	return c.store.Get(orderID)
}

// CancelOrder authorizes the requester and drives the on-chain
// cancellation entry point, flipping the order to CANCELLED on success.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, requester string) (book.Order, error) {
	o, err := c.store.Cancel(ctx, orderID, requester, c.cancelHook)
	if err != nil {
		switch {
		case errors.Is(err, book.ErrNotFound), errors.Is(err, book.ErrUnauthorized), errors.Is(err, book.ErrInvalidState):
			return book.Order{}, stateErr("cancel", err)
		default:
			var ce *Error
			if errors.As(err, &ce) {
				return book.Order{}, err
			}
			return book.Order{}, infraErr("cancel", err)
		}
	}

	c.logger.Infow("order_cancelled", "order", orderID, "tx", o.TxHash)
	return o, nil
}

// cancelHook is the store's on-chain cancellation path. It runs outside
// the store lock.
func (c *Coordinator) cancelHook(ctx context.Context, o book.Order) (string, uint64, string, error) {
	est, err := c.estimator.Quote(ctx, &o, gas.Overrides{})
	if err != nil {
		return "", 0, "", infraErr("gas estimation", errors.Join(ErrGasEstimation, err))
	}

	to, data, err := c.encoder.EncodeCancellation(o)
	if err != nil {
		return "", 0, "", stateErr("encode cancellation", err)
	}

	rcpt, err := c.submit(ctx, o.ID, "cancel", to, data, est)
	if err != nil {
		return "", 0, "", err
	}
	return rcpt.TxHash.Hex(), rcpt.GasUsed, rcpt.EffectiveGasPrice.String(), nil
}

// preflight loads the order and enforces the state gate: it must exist,
// be PENDING and not past its deadline. A past deadline flips the order
// to EXPIRED in the same atomic step that observed it.
func (c *Coordinator) preflight(orderID string) (book.Order, error) {
	expired, err := c.store.ExpireIfPast(orderID)
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return book.Order{}, stateErr("preflight", book.ErrNotFound)
		}
		return book.Order{}, stateErr("preflight", err)
	}
	if expired {
		return book.Order{}, stateErr("preflight", ErrExpired)
	}
	return c.store.Get(orderID)
}

// submit signs, broadcasts and confirms one transaction. The nonce is
// allocated by the per-signer sequencer; the receipt wait runs outside
// the sequencer's lock.
func (c *Coordinator) submit(ctx context.Context, orderID, kind string, to common.Address, data []byte, est gas.Estimate) (Receipt, error) {
	feeCap := est.MaxFeePerGas
	if feeCap == nil {
		feeCap = est.GasPrice
	}
	tipCap := est.MaxPriorityFeePerGas
	if tipCap == nil {
		tipCap = big.NewInt(0)
	}

	var txHash common.Hash
	err := c.seq.Broadcast(ctx, func(nonce uint64) error {
		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			GasTipCap: tipCap,
			GasFeeCap: feeCap,
			Gas:       est.GasLimit,
			To:        &to,
			Value:     big.NewInt(0),
			Data:      data,
		})
		signed, err := c.wallet.SignTx(tx, c.chainID)
		if err != nil {
			return infraErr("sign", err)
		}
		if err := c.chain.SendTransaction(ctx, signed); err != nil {
			return infraErr("broadcast", err)
		}
		txHash = signed.Hash()
		return nil
	})
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return Receipt{}, err
		}
		return Receipt{}, infraErr("broadcast", err)
	}

	c.logger.Infow("tx_broadcast", "order", orderID, "kind", kind, "tx", txHash.Hex(), "gas_limit", est.GasLimit)

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptWait)
	defer cancel()

	rcpt, err := c.chain.WaitForReceipt(waitCtx, txHash, c.confirmations)
	if err != nil {
		return Receipt{}, infraErr("confirmation wait", err)
	}

	c.journalReceipt(orderID, kind, rcpt)

	if !rcpt.Success {
		return Receipt{}, onchainErr("execution reverted", ErrOnchainExecution)
	}
	return rcpt, nil
}

func (c *Coordinator) journalReceipt(orderID, kind string, rcpt Receipt) {
	if c.jrnl == nil {
		return
	}
	err := c.jrnl.Record(journal.Entry{
		TxHash:        rcpt.TxHash.Hex(),
		OrderID:       orderID,
		Kind:          kind,
		BlockNumber:   rcpt.BlockNumber,
		GasUsed:       rcpt.GasUsed,
		GasPrice:      rcpt.EffectiveGasPrice,
		Success:       rcpt.Success,
		Confirmations: rcpt.Confirmations,
		RecordedAt:    util.NowMillis(c.clock),
	})
	if err != nil {
		// journal is a cache; losing an entry is not fatal
		c.logger.Warnw("journal_write_failed", "tx", rcpt.TxHash.Hex(), "err", err)
	}
}

// EstimateGas quotes the order without touching the chain state beyond a
// fee read. The order must exist and be PENDING.
func (c *Coordinator) EstimateGas(ctx context.Context, orderID string, ov gas.Overrides) (gas.Estimate, error) {
	o, err := c.store.Get(orderID)
	if err != nil {
		return gas.Estimate{}, stateErr("estimate", err)
	}
	est, err := c.estimator.Quote(ctx, &o, ov)
	if err != nil {
		return gas.Estimate{}, infraErr("gas estimation", errors.Join(ErrGasEstimation, err))
	}
	return est, nil
}

// GetTransactionStatus resolves a receipt for the hash, serving from the
// local journal when the transaction was recorded there, otherwise
// querying the node. NotFound when the node has no receipt yet.
func (c *Coordinator) GetTransactionStatus(ctx context.Context, txHash string) (TxStatus, error) {
	if c.jrnl != nil {
		if e, ok, err := c.jrnl.ByTxHash(txHash); err == nil && ok {
			return TxStatus{
				TxHash:        e.TxHash,
				BlockNumber:   e.BlockNumber,
				GasUsed:       e.GasUsed,
				GasPrice:      bigString(e.GasPrice),
				Status:        successString(e.Success),
				Confirmations: e.Confirmations,
			}, nil
		}
	}

	rcpt, err := c.chain.GetReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return TxStatus{}, infraErr("receipt lookup", err)
	}
	if rcpt == nil {
		return TxStatus{}, stateErr("receipt lookup", ErrReceiptNotFound)
	}
	return TxStatus{
		TxHash:        rcpt.TxHash.Hex(),
		BlockNumber:   rcpt.BlockNumber,
		GasUsed:       rcpt.GasUsed,
		GasPrice:      bigString(rcpt.EffectiveGasPrice),
		Status:        successString(rcpt.Success),
		Confirmations: rcpt.Confirmations,
	}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func successString(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}
