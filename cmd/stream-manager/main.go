// Package main is the entry point for the remote stream manager. It tracks
// deployed materialized view dataflows and tears them down on request.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"streamddl/internal/config"
	"streamddl/internal/rpc"
	"streamddl/internal/streammeta"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type managerConfig struct {
	ListenAddr string
	AgentToken string
	Nodes      []string
}

func loadManagerConfig() (*managerConfig, error) {
	cfg := &managerConfig{
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		AgentToken: os.Getenv("AGENT_TOKEN"),
	}
	for _, n := range strings.Split(os.Getenv("STREAM_NODES"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			cfg.Nodes = append(cfg.Nodes, n)
		}
	}
	if cfg.AgentToken == "" {
		return nil, fmt.Errorf("AGENT_TOKEN is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9500"
	}
	return cfg, nil
}

func run() error {
	_ = config.LoadDotEnv(".env")
	cfg, err := loadManagerConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := rpc.NewServer(cfg.AgentToken)
	streammeta.Register(srv, streammeta.NewServer(streammeta.Config{Nodes: cfg.Nodes, Logger: logger}))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down stream manager")
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}()

	logger.Info("stream manager listening", "addr", lis.Addr().String(), "nodes", len(cfg.Nodes))
	return srv.Serve(lis)
}
