package exec

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/crypto"
	"github.com/limitrelay/limitrelay/pkg/gas"
	"github.com/limitrelay/limitrelay/pkg/util"
)

// fakeChain is an in-memory Broadcaster. Every accepted transaction gets
// a receipt with the configured success flag.
type fakeChain struct {
	mu         sync.Mutex
	nonce      uint64
	nonceErr   error
	nonceReads int
	sendErr    error
	sent       []*types.Transaction
	waitErr    error
	revert     bool
	known      map[common.Hash]*Receipt
}

func (f *fakeChain) CurrentFeeData(ctx context.Context) (gas.FeeData, error) {
	return gas.FeeData{}, errors.New("fee reader not wired in tests")
}

func (f *fakeChain) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceReads++
	if f.nonceErr != nil {
		return 0, f.nonceErr
	}
	return f.nonce, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (Receipt, error) {
	if f.waitErr != nil {
		return Receipt{}, f.waitErr
	}
	return Receipt{
		TxHash:            hash,
		BlockNumber:       100,
		GasUsed:           42_000,
		EffectiveGasPrice: big.NewInt(1_500_000_000),
		Success:           !f.revert,
		Confirmations:     confirmations,
	}, nil
}

func (f *fakeChain) GetReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.known[hash], nil
}

type fixture struct {
	coord *Coordinator
	store *book.Store
	chain *fakeChain
	clock *util.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &util.FakeClock{T: time.UnixMilli(1_700_000_000_000)}
	store := book.NewStore(clock)
	chain := &fakeChain{known: map[common.Hash]*Receipt{}}

	wallet, err := crypto.NewWallet()
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	enc, err := NewEncoder(map[int64]common.Address{
		1: common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3"),
	})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}

	coord := NewCoordinator(Deps{
		Store: store,
		Estimator: &gas.Estimator{
			BaseGasLimit:        100_000,
			FallbackGasPrice:    big.NewInt(1_000_000_000),
			FallbackPriorityFee: big.NewInt(100_000_000),
			FallbackMaxFee:      big.NewInt(2_000_000_000),
		},
		Encoder:       enc,
		Wallet:        wallet,
		Chain:         chain,
		ChainID:       big.NewInt(1),
		Confirmations: 1,
		ReceiptWait:   5 * time.Second,
		Clock:         clock,
		Logger:        zap.NewNop().Sugar(),
	})
	return &fixture{coord: coord, store: store, chain: chain, clock: clock}
}

func pendingOrder(t *testing.T, fx *fixture) string {
	t.Helper()
	id, err := fx.store.Create(book.Order{
		FromAsset:  "ETH",
		ToAsset:    "USDC",
		FromAmount: "1000000000000000000",
		ToAmount:   "2500000000",
		Side:       book.Sell,
		Owner:      "0x1111111111111111111111111111111111111111",
		ChainID:    1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestExecuteOnchainHappyPath(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)

	o, err := fx.coord.ExecuteOnchain(context.Background(), id, gas.Overrides{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if o.Status != book.Executed {
		t.Errorf("status = %s, want EXECUTED", o.Status)
	}
	if o.TxHash == "" {
		t.Error("tx hash not recorded")
	}
	if o.GasEstimate != 42_000 {
		t.Errorf("gasEstimate = %d, want receipt gasUsed", o.GasEstimate)
	}
	if o.GasPrice != "1500000000" {
		t.Errorf("gasPrice = %q, want effective price", o.GasPrice)
	}
	if len(fx.chain.sent) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(fx.chain.sent))
	}
	if fx.chain.sent[0].Nonce() != fx.chain.nonce {
		t.Errorf("nonce = %d, want %d", fx.chain.sent[0].Nonce(), fx.chain.nonce)
	}
}

func TestExecuteExpiredOrder(t *testing.T) {
	fx := newFixture(t)
	id, err := fx.store.Create(book.Order{
		FromAsset:  "ETH",
		ToAsset:    "USDC",
		FromAmount: "100",
		ToAmount:   "200",
		Side:       book.Sell,
		Owner:      "0xA",
		ChainID:    1,
		Deadline:   fx.clock.T.UnixMilli() + 1000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fx.clock.Advance(2 * time.Second)

	_, err = fx.coord.ExecuteOnchain(context.Background(), id, gas.Overrides{})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindState {
		t.Errorf("kind = %v, want state", err)
	}

	// the failed preflight flipped the record
	o, _ := fx.store.Get(id)
	if o.Status != book.Expired {
		t.Errorf("status = %s, want EXPIRED", o.Status)
	}
	if len(fx.chain.sent) != 0 {
		t.Error("expired order was broadcast")
	}
}

func TestExecuteRevertedLeavesPending(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)
	fx.chain.revert = true

	_, err := fx.coord.ExecuteOnchain(context.Background(), id, gas.Overrides{})
	if !errors.Is(err, ErrOnchainExecution) {
		t.Fatalf("err = %v, want ErrOnchainExecution", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindOnchain {
		t.Errorf("kind = %v, want onchain", err)
	}

	o, _ := fx.store.Get(id)
	if o.Status != book.Pending {
		t.Errorf("status = %s, want PENDING after revert", o.Status)
	}
}

func TestExecuteBroadcastFailureRetryable(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)
	fx.chain.sendErr = errors.New("connection refused")

	_, err := fx.coord.ExecuteOnchain(context.Background(), id, gas.Overrides{})
	if err == nil {
		t.Fatal("expected broadcast failure")
	}
	if !Retryable(err) {
		t.Errorf("infrastructure failure not retryable: %v", err)
	}

	o, _ := fx.store.Get(id)
	if o.Status != book.Pending {
		t.Errorf("status = %s, want PENDING", o.Status)
	}

	// retry succeeds and re-reads the pending nonce
	fx.chain.sendErr = nil
	reads := fx.chain.nonceReads
	if _, err := fx.coord.ExecuteOnchain(context.Background(), id, gas.Overrides{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if fx.chain.nonceReads != reads+1 {
		t.Errorf("nonce reads = %d, want re-prime after failure", fx.chain.nonceReads)
	}
}

func TestExecuteMissingOrder(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.coord.ExecuteOnchain(context.Background(), "missing", gas.Overrides{})
	if !errors.Is(err, book.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if Retryable(err) {
		t.Error("state error reported retryable")
	}
}

func TestNonceAdvancesAcrossExecutions(t *testing.T) {
	fx := newFixture(t)
	fx.chain.nonce = 7

	for i := 0; i < 3; i++ {
		id := pendingOrder(t, fx)
		if _, err := fx.coord.ExecuteOnchain(context.Background(), id, gas.Overrides{}); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	if fx.chain.nonceReads != 1 {
		t.Errorf("nonce reads = %d, want a single priming read", fx.chain.nonceReads)
	}
	for i, tx := range fx.chain.sent {
		if want := uint64(7 + i); tx.Nonce() != want {
			t.Errorf("tx %d nonce = %d, want %d", i, tx.Nonce(), want)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)

	o, err := fx.coord.CancelOrder(context.Background(), id, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != book.Cancelled {
		t.Errorf("status = %s, want CANCELLED", o.Status)
	}
	if o.TxHash == "" {
		t.Error("cancellation tx hash not recorded")
	}
	if len(fx.chain.sent) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(fx.chain.sent))
	}
}

func TestCancelUnauthorized(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)

	_, err := fx.coord.CancelOrder(context.Background(), id, "0xsomeoneelse")
	if !errors.Is(err, book.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if len(fx.chain.sent) != 0 {
		t.Error("unauthorized cancel reached the chain")
	}

	o, _ := fx.store.Get(id)
	if o.Status != book.Pending {
		t.Errorf("status = %s, want PENDING", o.Status)
	}
}

func TestCancelBroadcastFailureKeepsPending(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)
	fx.chain.sendErr = errors.New("mempool full")

	_, err := fx.coord.CancelOrder(context.Background(), id, "0x1111111111111111111111111111111111111111")
	if err == nil {
		t.Fatal("expected cancel failure")
	}

	o, _ := fx.store.Get(id)
	if o.Status != book.Pending {
		t.Errorf("status = %s, want PENDING after failed cancel", o.Status)
	}
}

func TestEstimateGasDoesNotBroadcast(t *testing.T) {
	fx := newFixture(t)
	id := pendingOrder(t, fx)

	est, err := fx.coord.EstimateGas(context.Background(), id, gas.Overrides{})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if est.GasLimit == 0 || est.TotalCost == nil {
		t.Errorf("incomplete estimate: %+v", est)
	}
	if len(fx.chain.sent) != 0 {
		t.Error("estimate broadcast a transaction")
	}
}

func TestGetTransactionStatus(t *testing.T) {
	fx := newFixture(t)
	hash := common.HexToHash("0xabc123")
	fx.chain.known[hash] = &Receipt{
		TxHash:            hash,
		BlockNumber:       55,
		GasUsed:           21_000,
		EffectiveGasPrice: big.NewInt(2_000_000_000),
		Success:           true,
		Confirmations:     3,
	}

	st, err := fx.coord.GetTransactionStatus(context.Background(), hash.Hex())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Status != "success" || st.BlockNumber != 55 || st.GasPrice != "2000000000" {
		t.Errorf("unexpected status: %+v", st)
	}

	_, err = fx.coord.GetTransactionStatus(context.Background(), common.HexToHash("0xdead").Hex())
	if !errors.Is(err, ErrReceiptNotFound) {
		t.Errorf("err = %v, want ErrReceiptNotFound", err)
	}
}
