// Package config holds process configuration, resolved once at startup from
// the environment (optionally seeded from a .env file by the CLI).
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Account describes one monitored cloud account. The key is opaque to the
// core; profile and region feed the AWS credential chain.
type Account struct {
	Key     string `json:"key"`
	Profile string `json:"profile,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Config is the full process configuration.
type Config struct {
	ListenAddr string
	Debug      bool

	// Accounts maps account key -> account. Parsed from IAMDASH_ACCOUNTS,
	// a comma-separated list of key[:profile[:region]] entries.
	Accounts map[string]Account

	// Optional overrides for the embedded declarative artifacts.
	MatrixPath  string
	WeightsPath string

	// Audit sink selection: "jsonl" (default), "postgres", or "memory".
	AuditSink      string
	AuditPath      string
	AuditDSN       string
	AuditQueueSize int
	AuditTimeout   time.Duration
}

// Load reads configuration from the environment. Missing optional values
// get defaults; a malformed accounts list is an error.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     envOr("IAMDASH_LISTEN_ADDR", ":8080"),
		MatrixPath:     os.Getenv("IAMDASH_MATRIX_FILE"),
		WeightsPath:    os.Getenv("IAMDASH_WEIGHTS_FILE"),
		AuditSink:      envOr("IAMDASH_AUDIT_SINK", "jsonl"),
		AuditPath:      envOr("IAMDASH_AUDIT_PATH", "audit/events.jsonl"),
		AuditDSN:       os.Getenv("IAMDASH_AUDIT_DSN"),
		AuditQueueSize: envInt("IAMDASH_AUDIT_QUEUE", 1024),
		AuditTimeout:   time.Duration(envInt("IAMDASH_AUDIT_TIMEOUT_MS", 2000)) * time.Millisecond,
	}

	accounts, err := parseAccounts(os.Getenv("IAMDASH_ACCOUNTS"))
	if err != nil {
		return nil, err
	}
	cfg.Accounts = accounts

	switch cfg.AuditSink {
	case "jsonl", "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown audit sink %q (want jsonl, postgres, or memory)", cfg.AuditSink)
	}
	if cfg.AuditSink == "postgres" && cfg.AuditDSN == "" {
		return nil, fmt.Errorf("IAMDASH_AUDIT_DSN is required for the postgres audit sink")
	}
	return cfg, nil
}

// parseAccounts parses "prod:prod-audit:us-east-1,dev" style lists. An
// empty value yields a single "default" account using the ambient
// credential chain.
func parseAccounts(raw string) (map[string]Account, error) {
	accounts := make(map[string]Account)
	if strings.TrimSpace(raw) == "" {
		accounts["default"] = Account{Key: "default"}
		return accounts, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("malformed account entry %q (want key[:profile[:region]])", entry)
		}
		acct := Account{Key: parts[0]}
		if len(parts) > 1 {
			acct.Profile = parts[1]
		}
		if len(parts) > 2 {
			acct.Region = parts[2]
		}
		if acct.Key == "" {
			return nil, fmt.Errorf("malformed account entry %q: empty key", entry)
		}
		if _, dup := accounts[acct.Key]; dup {
			return nil, fmt.Errorf("duplicate account key %q", acct.Key)
		}
		accounts[acct.Key] = acct
	}
	return accounts, nil
}

// AccountKeys returns the configured account keys in sorted-stable order.
func (c *Config) AccountKeys() []string {
	keys := make([]string, 0, len(c.Accounts))
	for k := range c.Accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
