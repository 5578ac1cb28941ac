// Package main is the entry point for the DDL coordinator. It owns the
// catalog metastore and serves DROP TABLE and CREATE MATERIALIZED VIEW over
// the PostgreSQL wire protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"streamddl/internal/bootstrap"
	"streamddl/internal/config"
	internaldb "streamddl/internal/db"
	"streamddl/internal/pgwire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = config.LoadDotEnv(".env")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	ms, err := internaldb.OpenMetastore(cfg.MetaDBPath, 4)
	if err != nil {
		return err
	}
	defer ms.Close() //nolint:errcheck

	svc, err := newServices(cfg, ms, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.membership.Start(ctx, cfg.MembershipRefresh); err != nil {
		return fmt.Errorf("membership: %w", err)
	}
	defer svc.membership.Stop()

	if cfg.CatalogBootstrap != "" {
		f, err := bootstrap.Load(cfg.CatalogBootstrap)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		sum, err := bootstrap.Apply(ctx, f, svc.coordinator, svc.membership, cfg.DefaultSchemaName(), logger)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("catalog bootstrap applied", "path", cfg.CatalogBootstrap, "created", sum.Created, "skipped", sum.Skipped)
	}

	srv := pgwire.NewServer(pgwire.Config{
		Addr:           cfg.PGWireAddr,
		Logger:         logger,
		Execute:        svc.registry.Execute,
		DefaultSchema:  cfg.DefaultSchemaName(),
		StatementRate:  cfg.StatementRateLimit,
		StatementBurst: cfg.StatementBurst,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("pgwire: %w", err)
	}
	logger.Info("ddl coordinator started",
		"pgwire", srv.Addr(),
		"stream_manager", svc.streamMode,
		"metastore", cfg.MetaDBPath,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("pgwire shutdown failed", "error", err)
	}
	return nil
}
