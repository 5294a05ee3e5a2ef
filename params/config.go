package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// DevDeployerKey is the well-known first development account key. Genesis
// token and exchange addresses are derived from it, so the same key always
// yields the same addresses.
const DevDeployerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type Exchange struct {
	FeeAccount      common.Address
	FeePercent      uint64 // taker fee, percent of amountGet
	FlashLoanFeeBps uint64 // flash loan fee, basis points of principal
	ChainID         int64  // EIP-712 domain chain id
}

type Node struct {
	DataDir  string // pebble block log + state; empty keeps everything in memory
	APIAddr  string
	LogFile  string
	TxLogDir string

	// BlockTime paces block production. Empty blocks are not produced.
	BlockTime     time.Duration
	MaxBlockBytes int64
	MaxPending    int

	Verbose     bool
	EnableTxGen bool
}

type GenesisToken struct {
	Symbol string
	Name   string
	Supply uint64 // whole tokens, scaled by 10^18 at mint
}

type Genesis struct {
	DeployerKey string
	Tokens      []GenesisToken
	// LenderReserve whole tokens of every genesis token are moved from the
	// deployer into the exchange's non-custodial reserve.
	LenderReserve uint64
}

type Config struct {
	Exchange Exchange
	Node     Node
	Genesis  Genesis
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			FeeAccount:      common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
			FeePercent:      10,
			FlashLoanFeeBps: 9,
			ChainID:         1337,
		},
		Node: Node{
			DataDir:       "data",
			APIAddr:       ":8080",
			LogFile:       "logs/node.log",
			TxLogDir:      "logs",
			BlockTime:     200 * time.Millisecond,
			MaxBlockBytes: 1 << 20,
			MaxPending:    10_000,
		},
		Genesis: Genesis{
			DeployerKey: DevDeployerKey,
			Tokens: []GenesisToken{
				{Symbol: "IPT", Name: "I Ptoken", Supply: 1_000_000},
				{Symbol: "mUSDC", Name: "Mock USDC", Supply: 1_000_000},
				{Symbol: "mLINK", Name: "Mock LINK", Supply: 1_000_000},
			},
			LenderReserve: 10_000,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_ACCOUNT"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("FEE_ACCOUNT: invalid address %q", v)
		}
		cfg.Exchange.FeeAccount = common.HexToAddress(v)
	}
	if err := envUint("FEE_PERCENT", &cfg.Exchange.FeePercent); err != nil {
		return cfg, err
	}
	if err := envUint("FLASH_LOAN_FEE_BPS", &cfg.Exchange.FlashLoanFeeBps); err != nil {
		return cfg, err
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Exchange.ChainID = id
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.TxLogDir = getEnv("TX_LOG_DIR", cfg.Node.TxLogDir)
	if v := os.Getenv("BLOCK_TIME_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("BLOCK_TIME_MS: %w", err)
		}
		cfg.Node.BlockTime = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MAX_BLOCK_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("MAX_BLOCK_BYTES: %w", err)
		}
		cfg.Node.MaxBlockBytes = n
	}
	if v := os.Getenv("MAX_PENDING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("MAX_PENDING: %w", err)
		}
		cfg.Node.MaxPending = n
	}
	cfg.Node.Verbose = os.Getenv("VERBOSE") == "true"
	cfg.Node.EnableTxGen = os.Getenv("ENABLE_TXGEN") == "true"

	cfg.Genesis.DeployerKey = strings.TrimPrefix(getEnv("DEPLOYER_KEY", cfg.Genesis.DeployerKey), "0x")
	if v := os.Getenv("GENESIS_TOKENS"); v != "" {
		tokens, err := ParseGenesisTokens(v)
		if err != nil {
			return cfg, fmt.Errorf("GENESIS_TOKENS: %w", err)
		}
		cfg.Genesis.Tokens = tokens
	}
	if err := envUint("LENDER_RESERVE", &cfg.Genesis.LenderReserve); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// ParseGenesisTokens parses "SYMBOL:Name:supply,..." entries.
func ParseGenesisTokens(s string) ([]GenesisToken, error) {
	var out []GenesisToken
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("entry %q: want SYMBOL:Name:supply", entry)
		}
		supply, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: bad supply: %w", entry, err)
		}
		out = append(out, GenesisToken{
			Symbol: strings.TrimSpace(parts[0]),
			Name:   strings.TrimSpace(parts[1]),
			Supply: supply,
		})
	}
	return out, nil
}

func (c Config) Validate() error {
	if c.Exchange.FeeAccount == (common.Address{}) {
		return fmt.Errorf("fee account must not be the zero address")
	}
	if c.Exchange.FeePercent > 100 {
		return fmt.Errorf("fee percent %d exceeds 100", c.Exchange.FeePercent)
	}
	if c.Exchange.FlashLoanFeeBps > 10_000 {
		return fmt.Errorf("flash loan fee %d bps exceeds 10000", c.Exchange.FlashLoanFeeBps)
	}
	if c.Node.BlockTime <= 0 {
		return fmt.Errorf("block time must be positive")
	}
	if c.Genesis.DeployerKey == "" {
		return fmt.Errorf("deployer key is required")
	}
	seen := make(map[string]bool)
	for _, t := range c.Genesis.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("genesis token with empty symbol")
		}
		key := strings.ToUpper(t.Symbol)
		if seen[key] {
			return fmt.Errorf("duplicate genesis token %s", t.Symbol)
		}
		seen[key] = true
		if c.Genesis.LenderReserve > t.Supply {
			return fmt.Errorf("lender reserve %d exceeds %s supply %d", c.Genesis.LenderReserve, t.Symbol, t.Supply)
		}
	}
	return nil
}

func envUint(key string, dst *uint64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
