// Package handler executes parsed DDL statements. Each statement runs in one
// catalog transaction that commits only after every node and stream manager
// effect has succeeded.
package handler

import (
	"context"
	"log/slog"
	"sync"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
	"streamddl/internal/sqlfront"
)

// Handler executes one kind of statement.
type Handler interface {
	Handle(ctx context.Context, sess domain.Session, stmt sqlfront.Statement) (*domain.DdlResult, error)
}

// FragmentBroadcaster runs a plan fragment on every given compute node.
type FragmentBroadcaster interface {
	Broadcast(ctx context.Context, fragment *plan.PlanFragment, nodes []domain.WorkerNode) error
}

// NodeSource lists the compute nodes a drop is broadcast to.
type NodeSource interface {
	AllNodes() []domain.WorkerNode
}

// StreamDelegate deploys and tears down materialized view dataflows.
type StreamDelegate interface {
	SupportsTeardown() bool
	CreateMaterializedView(ctx context.Context, node *plan.StreamNode, ref domain.TableRefID) error
	DropMaterializedView(ctx context.Context, ref domain.TableRefID) error
}

// StreamPlanner builds the streaming plan of a materialized view.
type StreamPlanner interface {
	Plan(ctx context.Context, sess domain.Session, stmt *sqlfront.CreateMaterializedView) (*plan.StreamingPlan, error)
}

// Registry dispatches statements to the handler registered for their kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.StatementKind]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{handlers: make(map[domain.StatementKind]Handler), logger: logger}
}

// Register binds h to kind, replacing any earlier handler.
func (r *Registry) Register(kind domain.StatementKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Execute parses sql and runs it with the handler for its kind.
func (r *Registry) Execute(ctx context.Context, sess domain.Session, sql string) (*domain.DdlResult, error) {
	stmt, err := sqlfront.Parse(sql)
	if err != nil {
		return nil, err
	}
	return r.Dispatch(ctx, sess, stmt)
}

// Dispatch runs an already parsed statement.
func (r *Registry) Dispatch(ctx context.Context, sess domain.Session, stmt sqlfront.Statement) (*domain.DdlResult, error) {
	r.mu.RLock()
	h, ok := r.handlers[stmt.Kind()]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUnsupportedStatement("no handler registered for %s", stmt.Kind().CommandTag())
	}

	result, err := h.Handle(ctx, sess, stmt)
	if err != nil {
		r.logger.Warn("statement failed", "kind", stmt.Kind(), "user", sess.User, "error", err)
		return nil, err
	}
	r.logger.Info("statement completed", "kind", stmt.Kind(), "user", sess.User)
	return result, nil
}
