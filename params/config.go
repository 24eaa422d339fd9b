package params

import (
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Chain struct {
	RPCURL        string
	ChainID       *big.Int
	Confirmations uint64
	CallTimeout   time.Duration // bound on every single RPC call
	ReceiptWait   time.Duration // total budget for confirmation tracking
}

type Fees struct {
	BaseGasLimit uint64
	// Static fallback tier, used when no override is supplied and the
	// live fee read fails or is disabled.
	FallbackGasPriceWei    *big.Int
	FallbackPriorityFeeWei *big.Int
	FallbackMaxFeeWei      *big.Int
}

type Feed struct {
	WSURL         string
	DialTimeout   time.Duration
	StaleAfter    time.Duration
	AllowFallback bool // synthetic quotes when the feed is down
}

type Server struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Config struct {
	Chain      Chain
	Fees       Fees
	Feed       Feed
	Server     Server
	SignerKey  string // hex-encoded execution key; empty means generate ephemeral
	JournalDir string
	LogFile    string
}

func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:        "http://localhost:8545",
			ChainID:       big.NewInt(1337),
			Confirmations: 1,
			CallTimeout:   10 * time.Second,
			ReceiptWait:   2 * time.Minute,
		},
		Fees: Fees{
			BaseGasLimit:           250_000,
			FallbackGasPriceWei:    big.NewInt(20_000_000_000), // 20 gwei
			FallbackPriorityFeeWei: big.NewInt(1_500_000_000),  // 1.5 gwei
			FallbackMaxFeeWei:      big.NewInt(40_000_000_000), // 40 gwei
		},
		Feed: Feed{
			DialTimeout:   5 * time.Second,
			StaleAfter:    30 * time.Second,
			AllowFallback: false,
		},
		Server: Server{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		JournalDir: "data/journal",
		LogFile:    "data/relayd.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("CHAIN_CONFIRMATIONS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Chain.Confirmations = n
		}
	}
	if v := os.Getenv("CHAIN_CALL_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Chain.CallTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CHAIN_RECEIPT_WAIT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Chain.ReceiptWait = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("BASE_GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Fees.BaseGasLimit = n
		}
	}
	if v := os.Getenv("FALLBACK_GAS_PRICE_WEI"); v != "" {
		if p, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Fees.FallbackGasPriceWei = p
		}
	}
	if v := os.Getenv("FEED_WS_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("FEED_ALLOW_FALLBACK"); v != "" {
		cfg.Feed.AllowFallback = v == "true"
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SIGNER_KEY"); v != "" {
		cfg.SignerKey = v
	}
	if v := os.Getenv("JOURNAL_DIR"); v != "" {
		cfg.JournalDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}
