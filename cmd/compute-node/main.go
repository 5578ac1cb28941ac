// Package main is the entry point for the compute node binary. The node keeps
// its tables in DuckDB and serves the task service that drop fragments are
// broadcast to.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"streamddl/internal/agent"
	"streamddl/internal/rpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadNodeConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.MaxMemoryGB > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET max_memory='%dGB'", cfg.MaxMemoryGB)); err != nil {
			return fmt.Errorf("set max_memory: %w", err)
		}
		logger.Info("memory limit set", "max_memory_gb", cfg.MaxMemoryGB)
	}

	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := rpc.NewServer(cfg.AgentToken)
	agent.RegisterTaskServer(srv, agent.NewTaskServer(agent.TaskServerConfig{
		DB:        db,
		StartTime: time.Now(),
		Logger:    logger,
	}))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down compute node")
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}()

	logger.Info("compute node listening", "addr", lis.Addr().String(), "duckdb", cfg.DuckDBPath)
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
