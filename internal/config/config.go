package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	ListenAddr  string
	DatabaseURL string
	RedisAddr   string

	// CustodySecret seeds sub-account address derivation. Rotating it
	// orphans every derived account, so it must be stable per deployment.
	// Deployments that keep it sealed on disk set CustodySecretFile and
	// CustodyKeyFile instead of the plaintext value.
	CustodySecret     string
	CustodySecretFile string
	CustodyKeyFile    string

	// VaultOracleURL points at the share price feed. When empty the
	// static price in VaultSharePrice is served instead.
	VaultOracleURL  string
	VaultSharePrice string

	SlippageToleranceBps int64

	AuditSink string
}

// Load reads configuration from environment variables.
// Development profiles may omit DATABASE_URL and run on the in-memory store.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       os.Getenv("APP_ENV"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CustodySecret:     os.Getenv("CUSTODY_SECRET"),
		CustodySecretFile: os.Getenv("CUSTODY_SECRET_FILE"),
		CustodyKeyFile:    os.Getenv("CUSTODY_KEY_FILE"),
		VaultOracleURL:    os.Getenv("VAULT_ORACLE_URL"),
		VaultSharePrice:   os.Getenv("VAULT_SHARE_PRICE"),
		AuditSink:         os.Getenv("AUDIT_SINK"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.VaultSharePrice == "" {
		cfg.VaultSharePrice = "1"
	}

	cfg.SlippageToleranceBps = 10000
	if v := os.Getenv("SLIPPAGE_TOLERANCE_BPS"); v != "" {
		bps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.New("SLIPPAGE_TOLERANCE_BPS must be an integer")
		}
		cfg.SlippageToleranceBps = bps
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.CustodySecret == "" && (c.CustodySecretFile == "" || c.CustodyKeyFile == "") {
		missing = append(missing, "CUSTODY_SECRET or CUSTODY_SECRET_FILE+CUSTODY_KEY_FILE")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.CustodySecret != "" && len(c.CustodySecret) < 16 {
		return errors.New("CUSTODY_SECRET must be at least 16 bytes")
	}
	if c.SlippageToleranceBps < 0 || c.SlippageToleranceBps > 10000 {
		return errors.New("SLIPPAGE_TOLERANCE_BPS must be between 0 and 10000")
	}

	// Production may not run on the in-memory store or without an audit trail.
	if c.Environment == "production" || c.Environment == "staging" {
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.AuditSink == "" {
			missing = append(missing, "AUDIT_SINK")
		}
		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}
	}

	return nil
}
