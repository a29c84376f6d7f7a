// Package config handles indexer configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all indexer configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	LogFmt   string // "text" or "json"

	// Database (optional, uses in-memory store if not set)
	DatabaseURL string

	// Metadata resolution
	IPFSGateway     string
	MetadataTimeout time.Duration

	// Chains being indexed, for labelling.
	ChainNames map[int64]string

	// Built-in log watcher (optional, disabled when RPCURL is empty).
	// Events can also arrive over the internal HTTP delivery endpoints,
	// e.g. from a backfill job.
	RPCURL             string
	WatchChainID       int64
	IdentityRegistry   string
	ReputationRegistry string
	USDCContract       string
	PollInterval       time.Duration
	StartBlock         uint64

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultIPFSGateway     = "https://ipfs.io/ipfs/"
	DefaultMetadataTimeout = 10 * time.Second
	DefaultPollInterval    = 15 * time.Second
	DefaultWatchChainID    = 84532
)

// defaultChainNames labels the chains the registry contracts are deployed on.
var defaultChainNames = map[int64]string{
	1:        "ethereum",
	8453:     "base",
	11155111: "sepolia",
	84532:    "base-sepolia",
}

// Load reads configuration from environment variables.
// It loads .env first if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFmt:          getEnv("LOG_FORMAT", "text"),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional
		IPFSGateway:     getEnv("IPFS_GATEWAY", DefaultIPFSGateway),
		MetadataTimeout: getEnvDuration("METADATA_TIMEOUT", DefaultMetadataTimeout),
		ChainNames:      defaultChainNames,

		RPCURL:             os.Getenv("RPC_URL"), // Optional
		WatchChainID:       getEnvInt64("WATCH_CHAIN_ID", DefaultWatchChainID),
		IdentityRegistry:   os.Getenv("IDENTITY_REGISTRY"),
		ReputationRegistry: os.Getenv("REPUTATION_REGISTRY"),
		USDCContract:       os.Getenv("USDC_CONTRACT"),
		PollInterval:       getEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		StartBlock:         uint64(getEnvInt64("START_BLOCK", 0)),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("METADATA_TIMEOUT must be positive")
	}
	if c.IPFSGateway == "" {
		return fmt.Errorf("IPFS_GATEWAY must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %w", err)
	}
	if c.RPCURL != "" {
		if c.IdentityRegistry == "" || c.ReputationRegistry == "" || c.USDCContract == "" {
			return fmt.Errorf("RPC_URL is set: IDENTITY_REGISTRY, REPUTATION_REGISTRY and USDC_CONTRACT are required")
		}
		if c.PollInterval <= 0 {
			return fmt.Errorf("POLL_INTERVAL must be positive")
		}
	}
	return nil
}

// WatcherEnabled reports whether the built-in log watcher should run.
func (c *Config) WatcherEnabled() bool {
	return c.RPCURL != ""
}

// ChainName returns the human label for a chain id.
func (c *Config) ChainName(chainID int64) string {
	if name, ok := c.ChainNames[chainID]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", chainID)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
