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

// CreateMaterializedViewHandler executes CREATE MATERIALIZED VIEW.
type CreateMaterializedViewHandler struct {
	catalog *catalog.Coordinator
	planner StreamPlanner
	streams StreamDelegate
	logger  *slog.Logger
}

// NewCreateMaterializedViewHandler creates a CreateMaterializedViewHandler.
func NewCreateMaterializedViewHandler(c *catalog.Coordinator, p StreamPlanner, streams StreamDelegate, logger *slog.Logger) *CreateMaterializedViewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateMaterializedViewHandler{catalog: c, planner: p, streams: streams, logger: logger}
}

// Handle plans the view, registers it, binds the plan to the assigned id, and
// deploys the dataflow. Every output column must carry a user-visible name.
func (h *CreateMaterializedViewHandler) Handle(ctx context.Context, sess domain.Session, stmt sqlfront.Statement) (*domain.DdlResult, error) {
	create, ok := stmt.(*sqlfront.CreateMaterializedView)
	if !ok {
		return nil, fmt.Errorf("create materialized view handler got %T", stmt)
	}
	name := create.Name.Qualify(sess.DefaultSchema())

	sp, err := h.planner.Plan(ctx, sess, create)
	if err != nil {
		return nil, err
	}
	if !plan.AllAliased(sp) {
		return nil, domain.ErrInvalidColumnDefinition("An alias name must be specified for an aggregation function")
	}

	err = h.catalog.WithTx(ctx, func(tx *catalog.Coordinator) error {
		view, err := tx.RegisterMaterializedView(ctx, name.SchemaName(), name.Table, domain.MaterializedViewInfo{
			Columns:      sp.Columns(),
			Collation:    sp.Collation(),
			Materialized: true,
		})
		if err != nil {
			return err
		}

		sp.SetTableID(view.Ref)
		node, err := sp.Serialize()
		if err != nil {
			return domain.ErrInternalExecution("serialize stream plan of %s: %v", name.String(), err)
		}
		h.logger.Debug("stream node", "view", name.String(), "table_id", view.Ref.String(), "plan", string(node.Plan))

		if err := tx.BindStreamPlan(ctx, view, node.Plan); err != nil {
			return err
		}
		return h.streams.CreateMaterializedView(ctx, node, view.Ref)
	})
	if err != nil {
		return nil, err
	}
	return domain.NewDdlResult(domain.StatementCreateMaterializedView), nil
}
