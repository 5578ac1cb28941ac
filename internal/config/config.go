// Package config handles server configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"streamddl/internal/domain"
)

// Config holds the configuration of the DDL coordinator server.
type Config struct {
	MetaDBPath string // path to the SQLite catalog metastore
	PGWireAddr string // PostgreSQL wire listen address (default ":5433")
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Unqualified names resolve against DefaultDatabase.DefaultSchema.
	DefaultDatabase string
	DefaultSchema   string

	StreamManagerMode string // "local" (default) or "remote"
	StreamManagerAddr string // grpc:// endpoint of the remote stream manager
	AgentToken        string // shared token for compute nodes and the stream manager

	BroadcastParallelism int    // concurrent node RPCs per broadcast (default 8)
	MembershipRefresh    string // cron spec for reloading worker nodes (default "@every 30s")
	CatalogBootstrap     string // optional YAML file applied at start

	// Per-connection statement rate limiting.
	StatementRateLimit float64 // statements per second, 0 disables (default 50)
	StatementBurst     int     // burst capacity (default 100)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultSchemaName returns the schema unqualified names resolve against.
func (c *Config) DefaultSchemaName() domain.SchemaName {
	return domain.SchemaName{Database: c.DefaultDatabase, Schema: c.DefaultSchema}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:        os.Getenv("META_DB_PATH"),
		PGWireAddr:        os.Getenv("PGWIRE_ADDR"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
		DefaultDatabase:   os.Getenv("DEFAULT_DATABASE"),
		DefaultSchema:     os.Getenv("DEFAULT_SCHEMA"),
		StreamManagerMode: strings.ToLower(strings.TrimSpace(os.Getenv("STREAM_MANAGER_MODE"))),
		StreamManagerAddr: os.Getenv("STREAM_MANAGER_ADDR"),
		AgentToken:        os.Getenv("AGENT_TOKEN"),
		MembershipRefresh: os.Getenv("MEMBERSHIP_REFRESH"),
		CatalogBootstrap:  os.Getenv("CATALOG_BOOTSTRAP"),
	}

	if v := os.Getenv("BROADCAST_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("BROADCAST_PARALLELISM must be a positive integer, got %q", v)
		}
		cfg.BroadcastParallelism = n
	}
	if v := os.Getenv("STATEMENT_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("STATEMENT_RATE_LIMIT must be a non-negative number, got %q", v)
		}
		cfg.StatementRateLimit = f
	} else {
		cfg.StatementRateLimit = 50
	}
	if v := os.Getenv("STATEMENT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StatementBurst = n
		}
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "streamddl_meta.sqlite"
	}
	if cfg.PGWireAddr == "" {
		cfg.PGWireAddr = ":5433"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultDatabase == "" {
		cfg.DefaultDatabase = "dev"
	}
	if cfg.DefaultSchema == "" {
		cfg.DefaultSchema = "public"
	}
	if cfg.StreamManagerMode == "" {
		cfg.StreamManagerMode = "local"
	}
	if cfg.BroadcastParallelism == 0 {
		cfg.BroadcastParallelism = 8
	}
	if cfg.MembershipRefresh == "" {
		cfg.MembershipRefresh = "@every 30s"
	}
	if cfg.StatementBurst <= 0 {
		cfg.StatementBurst = 100
	}

	switch cfg.StreamManagerMode {
	case "local":
		cfg.Warnings = append(cfg.Warnings, "STREAM_MANAGER_MODE=local: DROP of materialized views will fail")
	case "remote":
		if cfg.StreamManagerAddr == "" {
			return nil, fmt.Errorf("STREAM_MANAGER_ADDR is required when STREAM_MANAGER_MODE=remote")
		}
	default:
		return nil, fmt.Errorf("STREAM_MANAGER_MODE must be local or remote, got %q", cfg.StreamManagerMode)
	}
	if cfg.AgentToken == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("AGENT_TOKEN must be set in production (ENV=production)")
		}
		cfg.Warnings = append(cfg.Warnings, "AGENT_TOKEN not set: node and stream manager RPCs are unauthenticated")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
