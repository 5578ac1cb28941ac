// Package cluster tracks the compute nodes that receive broadcast plan
// fragments.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"streamddl/internal/domain"
)

// Membership is a cached view of the registered worker nodes. Broadcasts
// read the cache; a cron job and every registration refresh it.
type Membership struct {
	repo   domain.WorkerNodeRepository
	logger *slog.Logger
	cron   *cron.Cron

	mu    sync.RWMutex
	nodes []domain.WorkerNode
}

// NewMembership creates a Membership over repo. The cache starts empty until
// Refresh or Start is called.
func NewMembership(repo domain.WorkerNodeRepository, logger *slog.Logger) *Membership {
	if logger == nil {
		logger = slog.Default()
	}
	return &Membership{repo: repo, logger: logger, cron: cron.New()}
}

// Start loads the node list and refreshes it on the cron spec.
func (m *Membership) Start(ctx context.Context, spec string) error {
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	if spec == "" {
		return nil
	}
	_, err := m.cron.AddFunc(spec, func() {
		if err := m.Refresh(context.Background()); err != nil {
			m.logger.Warn("membership refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid membership refresh schedule %q: %w", spec, err)
	}
	m.cron.Start()
	m.logger.Info("membership refresh scheduled", "schedule", spec)
	return nil
}

// Stop stops the refresh job.
func (m *Membership) Stop() {
	<-m.cron.Stop().Done()
}

// Refresh reloads the node list from the repository.
func (m *Membership) Refresh(ctx context.Context) error {
	nodes, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list worker nodes: %w", err)
	}
	m.mu.Lock()
	changed := len(nodes) != len(m.nodes)
	m.nodes = nodes
	m.mu.Unlock()
	if changed {
		m.logger.Info("cluster membership changed", "nodes", len(nodes))
	}
	return nil
}

// AllNodes returns a snapshot of the known nodes.
func (m *Membership) AllNodes() []domain.WorkerNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.WorkerNode(nil), m.nodes...)
}

// Register adds a node and refreshes the cache.
func (m *Membership) Register(ctx context.Context, req domain.RegisterWorkerNodeRequest) (*domain.WorkerNode, error) {
	node, err := m.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return node, nil
}

// Unregister removes the node called name and refreshes the cache.
func (m *Membership) Unregister(ctx context.Context, name string) error {
	if err := m.repo.DeleteByName(ctx, name); err != nil {
		return err
	}
	return m.Refresh(ctx)
}
