package handler

import (
	"context"
	"fmt"
	"log/slog"

	"streamddl/internal/catalog"
	"streamddl/internal/domain"
	"streamddl/internal/plan"
	"streamddl/internal/sqlfront"
)

// DropTableHandler executes DROP TABLE [IF EXISTS].
type DropTableHandler struct {
	catalog     *catalog.Coordinator
	broadcaster FragmentBroadcaster
	nodes       NodeSource
	streams     StreamDelegate
	logger      *slog.Logger
}

// NewDropTableHandler creates a DropTableHandler.
func NewDropTableHandler(c *catalog.Coordinator, b FragmentBroadcaster, nodes NodeSource, streams StreamDelegate, logger *slog.Logger) *DropTableHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DropTableHandler{catalog: c, broadcaster: b, nodes: nodes, streams: streams, logger: logger}
}

// Handle drops the named relation. Materialized views and generated sources
// are removed through the stream manager; everything else is dropped on
// every compute node.
func (h *DropTableHandler) Handle(ctx context.Context, sess domain.Session, stmt sqlfront.Statement) (*domain.DdlResult, error) {
	drop, ok := stmt.(*sqlfront.DropTable)
	if !ok {
		return nil, fmt.Errorf("drop table handler got %T", stmt)
	}
	name := drop.Name.Qualify(sess.DefaultSchema())

	err := h.catalog.WithTx(ctx, func(tx *catalog.Coordinator) error {
		entities, err := tx.ResolveDrop(ctx, name, drop.IfExists)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			h.logger.Debug("drop skipped, relation does not exist", "table", name.String())
			return nil
		}
		for _, e := range entities {
			if e.DroppedByStreamManager() && !h.streams.SupportsTeardown() {
				return domain.ErrInternalExecution("cannot drop %s: the stream manager cannot tear down materialized views", e.Name.String())
			}
		}

		for _, e := range entities {
			if err := tx.Drop(ctx, e); err != nil {
				return err
			}
			if e.DroppedByStreamManager() {
				if err := h.streams.DropMaterializedView(ctx, e.Ref); err != nil {
					return err
				}
			} else if err := h.broadcaster.Broadcast(ctx, plan.BuildDropFragment(e), h.nodes.AllNodes()); err != nil {
				return err
			}
			h.logger.Debug("dropped", "table", e.Name.String(), "table_id", e.Ref.String(), "kind", string(e.Kind), "associated", e.IsAssociatedMaterializedView)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return domain.NewDdlResult(domain.StatementDropTable), nil
}
