package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// DefaultOperationTTL bounds how long the operation-hash to
	// transaction-hash mapping is kept. After expiry a receipt can no
	// longer be resolved through this subsystem.
	DefaultOperationTTL = time.Hour

	// Rate limit for the fee-spending RPC method, per caller.
	DefaultRateLimitWindow = time.Minute
	DefaultRateLimit       = 10
)

type Config struct {
	// DefaultChainID is used when a request does not select a chain.
	DefaultChainID uint64
	// RelayerKey is the funded operator key originating all settlement
	// transactions. A single key serves every supported chain.
	RelayerKey *ecdsa.PrivateKey
	// Beneficiary receives the EntryPoint gas refund for submitted
	// bundles. Defaults to the relayer address.
	Beneficiary common.Address
	// SessionSecret authenticates callers of the fee-spending method.
	SessionSecret []byte
	// RedisURL selects the durable counter/mapping store. When empty an
	// in-memory store is used, suitable only for development.
	RedisURL string
	// ChainOverrides replaces built-in RPC endpoints and paymaster
	// addresses per chain.
	ChainOverrides map[uint64]ChainOverride

	RPCHost         string
	RPCPort         int
	MetricsPort     int
	TracesEndpoint  string
	OperationTTL    time.Duration
	RateLimit       int
	RateLimitWindow time.Duration

	LogLevel  zerolog.Level
	LogWriter *os.File
}

// Default returns a config with every tunable at its default value.
func Default() *Config {
	return &Config{
		DefaultChainID:  8453,
		RPCHost:         "",
		RPCPort:         8545,
		MetricsPort:     9091,
		OperationTTL:    DefaultOperationTTL,
		RateLimit:       DefaultRateLimit,
		RateLimitWindow: DefaultRateLimitWindow,
		LogLevel:        zerolog.InfoLevel,
		LogWriter:       os.Stdout,
	}
}

// LoadEnv reads secret material from the environment, optionally seeded
// from a .env file. Flags own everything non-secret.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// a missing default .env is fine, the environment may be set directly
		_ = godotenv.Load()
	}

	if raw := os.Getenv("RELAYER_PRIVATE_KEY"); raw != "" {
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			return fmt.Errorf("invalid relayer private key: %w", err)
		}
		c.RelayerKey = key
		if c.Beneficiary == (common.Address{}) {
			c.Beneficiary = crypto.PubkeyToAddress(key.PublicKey)
		}
	}

	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		c.SessionSecret = []byte(secret)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.RedisURL = url
	}

	return nil
}

// RelayerAddress returns the address of the configured relayer key, or the
// zero address when no key is configured.
func (c *Config) RelayerAddress() common.Address {
	if c.RelayerKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.RelayerKey.PublicKey)
}
