package main

import (
	"fmt"
	"log/slog"

	"streamddl/internal/catalog"
	"streamddl/internal/cluster"
	"streamddl/internal/compute"
	"streamddl/internal/config"
	internaldb "streamddl/internal/db"
	"streamddl/internal/db/repository"
	"streamddl/internal/domain"
	"streamddl/internal/handler"
	"streamddl/internal/planner"
	"streamddl/internal/stream"
)

// services holds the wired coordinator components.
type services struct {
	coordinator *catalog.Coordinator
	membership  *cluster.Membership
	registry    *handler.Registry
	streamMode  stream.Mode
	closers     []func() error
}

// newServices wires the catalog, node membership, broadcaster, stream
// manager, planner, and statement handlers over ms.
func newServices(cfg *config.Config, ms *internaldb.Metastore, logger *slog.Logger) (*services, error) {
	manager, closeManager, err := newStreamManager(cfg)
	if err != nil {
		return nil, err
	}

	coord := catalog.NewCoordinator(repository.NewCatalogRepo(ms.Write), logger)
	members := cluster.NewMembership(repository.NewWorkerNodeRepo(ms.Write), logger)
	broadcaster := compute.NewBroadcaster(compute.NewClientManager(cfg.AgentToken), cfg.BroadcastParallelism, logger)
	delegate := stream.NewDelegate(manager, logger)

	registry := handler.NewRegistry(logger)
	registry.Register(domain.StatementDropTable,
		handler.NewDropTableHandler(coord, broadcaster, members, delegate, logger))
	registry.Register(domain.StatementCreateMaterializedView,
		handler.NewCreateMaterializedViewHandler(coord, planner.New(coord, logger), delegate, logger))

	svc := &services{
		coordinator: coord,
		membership:  members,
		registry:    registry,
		streamMode:  manager.Mode(),
	}
	if closeManager != nil {
		svc.closers = append(svc.closers, closeManager)
	}
	return svc, nil
}

// Close releases connections held by the services.
func (s *services) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// newStreamManager builds the stream manager selected by
// STREAM_MANAGER_MODE. The returned closer is nil for the local manager.
func newStreamManager(cfg *config.Config) (stream.Manager, func() error, error) {
	mode, err := stream.ParseMode(cfg.StreamManagerMode)
	if err != nil {
		return nil, nil, err
	}
	switch mode {
	case stream.ModeRemote:
		m, err := stream.NewRemoteManager(cfg.StreamManagerAddr, cfg.AgentToken)
		if err != nil {
			return nil, nil, fmt.Errorf("connect stream manager: %w", err)
		}
		return m, m.Close, nil
	default:
		return stream.NewLocalManager(), nil, nil
	}
}
