package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/limitrelay/limitrelay/params"
	"github.com/limitrelay/limitrelay/pkg/api"
	"github.com/limitrelay/limitrelay/pkg/book"
	"github.com/limitrelay/limitrelay/pkg/crypto"
	"github.com/limitrelay/limitrelay/pkg/exec"
	"github.com/limitrelay/limitrelay/pkg/feed"
	"github.com/limitrelay/limitrelay/pkg/gas"
	"github.com/limitrelay/limitrelay/pkg/journal"
	"github.com/limitrelay/limitrelay/pkg/strategy"
	"github.com/limitrelay/limitrelay/pkg/util"

	"github.com/shopspring/decimal"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("starting", "rpc", cfg.Chain.RPCURL, "chain_id", cfg.Chain.ChainID.String())

	// Execution key
	var wallet *crypto.Wallet
	if cfg.SignerKey != "" {
		wallet, err = crypto.WalletFromHex(cfg.SignerKey)
	} else {
		sugar.Warnw("no_signer_key_configured_using_ephemeral")
		wallet, err = crypto.NewWallet()
	}
	if err != nil {
		sugar.Fatalw("wallet_init_failed", "err", err)
	}
	sugar.Infow("execution_key_loaded", "address", wallet.Address().Hex())

	// Chain client
	chain, err := exec.NewEthBroadcaster(cfg.Chain.RPCURL, cfg.Chain.CallTimeout)
	if err != nil {
		sugar.Fatalw("rpc_dial_failed", "err", err)
	}
	defer chain.Close()

	// Receipt journal
	jrnl, err := journal.Open(cfg.JournalDir)
	if err != nil {
		sugar.Fatalw("journal_open_failed", "err", err)
	}
	defer jrnl.Close()

	// Market data feed
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var market feed.MarketData
	ws := feed.NewWSClient(cfg.Feed.WSURL, cfg.Feed.StaleAfter, sugar)
	if cfg.Feed.WSURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Feed.DialTimeout)
		if err := ws.Connect(dialCtx, pairsFromEnv()); err != nil {
			sugar.Warnw("feed_connect_failed", "err", err)
		}
		cancel()
	}
	market = ws
	if cfg.Feed.AllowFallback {
		market = feed.NewWithFallback(ws, decimal.NewFromInt(1), sugar)
	}

	// Core: one store, one engine, one coordinator, injected everywhere.
	store := book.NewStore(util.RealClock{})

	contracts := make(map[int64]common.Address)
	if v := os.Getenv("EXCHANGE_CONTRACT"); v != "" {
		contracts[cfg.Chain.ChainID.Int64()] = common.HexToAddress(v)
	} else {
		sugar.Warnw("no_exchange_contract_configured")
	}
	encoder, err := exec.NewEncoder(contracts)
	if err != nil {
		sugar.Fatalw("encoder_init_failed", "err", err)
	}

	estimator := &gas.Estimator{
		BaseGasLimit:        cfg.Fees.BaseGasLimit,
		Reader:              chain,
		FallbackGasPrice:    cfg.Fees.FallbackGasPriceWei,
		FallbackPriorityFee: cfg.Fees.FallbackPriorityFeeWei,
		FallbackMaxFee:      cfg.Fees.FallbackMaxFeeWei,
	}

	coordinator := exec.NewCoordinator(exec.Deps{
		Store:         store,
		Estimator:     estimator,
		Encoder:       encoder,
		Wallet:        wallet,
		Chain:         chain,
		Journal:       jrnl,
		ChainID:       cfg.Chain.ChainID,
		Confirmations: cfg.Chain.Confirmations,
		ReceiptWait:   cfg.Chain.ReceiptWait,
		Logger:        sugar,
	})

	engine := strategy.NewEngine(store, market, coordinator, util.RealClock{}, sugar)

	server := api.NewServer(store, engine, coordinator, cfg.Server.AllowedOrigins, sugar)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Server.ListenAddr) }()

	select {
	case err := <-errCh:
		sugar.Fatalw("server_failed", "err", err)
	case <-ctx.Done():
		sugar.Infow("shutting_down")
	}
}

func pairsFromEnv() []string {
	if v := os.Getenv("FEED_PAIRS"); v != "" {
		return strings.Split(v, ",")
	}
	return []string{"ETH-USDC"}
}
