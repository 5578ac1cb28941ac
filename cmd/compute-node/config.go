package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// NodeConfig holds configuration for a compute node, loaded from environment
// variables.
type NodeConfig struct {
	DuckDBPath  string // empty opens an in-memory database
	AgentToken  string
	ListenAddr  string
	MaxMemoryGB int
	LogLevel    string
}

func loadNodeConfig() (*NodeConfig, error) {
	cfg := &NodeConfig{
		DuckDBPath: os.Getenv("DUCKDB_PATH"),
		AgentToken: os.Getenv("AGENT_TOKEN"),
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
	}
	if v := os.Getenv("MAX_MEMORY_GB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_MEMORY_GB: %w", err)
		}
		cfg.MaxMemoryGB = n
	}
	if cfg.AgentToken == "" {
		return nil, fmt.Errorf("AGENT_TOKEN is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9443"
	}
	return cfg, nil
}

func (c *NodeConfig) slogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
