package stream

import (
	"context"
	"errors"
	"log/slog"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
)

// Delegate is the DDL handlers' entry point to the stream manager.
type Delegate struct {
	manager Manager
	logger  *slog.Logger
}

// NewDelegate creates a Delegate over manager.
func NewDelegate(manager Manager, logger *slog.Logger) *Delegate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Delegate{manager: manager, logger: logger}
}

// SupportsTeardown reports whether DropMaterializedView can succeed.
func (d *Delegate) SupportsTeardown() bool {
	_, ok := d.manager.Teardown()
	return ok
}

// CreateMaterializedView deploys node for view ref. node must be tagged with ref.
func (d *Delegate) CreateMaterializedView(ctx context.Context, node *plan.StreamNode, ref domain.TableRefID) error {
	if node == nil {
		return domain.ErrInternalExecution("stream node is required")
	}
	if node.TableRefID != ref {
		return domain.ErrInternalExecution("stream node is tagged %s, expected %s", node.TableRefID, ref)
	}
	if err := d.manager.CreateMaterializedView(ctx, node, ref); err != nil {
		return wrap(err, "create materialized view %s", ref)
	}
	d.logger.Debug("materialized view dataflow deployed", "table_id", ref.String(), "mode", d.manager.Mode())
	return nil
}

// DropMaterializedView tears down the dataflow of view ref.
func (d *Delegate) DropMaterializedView(ctx context.Context, ref domain.TableRefID) error {
	teardown, ok := d.manager.Teardown()
	if !ok {
		return domain.ErrInternalExecution("drop materialized view is not available in %s stream manager", d.manager.Mode())
	}
	if err := teardown.DropMaterializedView(ctx, ref); err != nil {
		return wrap(err, "drop materialized view %s", ref)
	}
	d.logger.Debug("materialized view dataflow removed", "table_id", ref.String())
	return nil
}

func wrap(err error, format string, args ...any) error {
	var sqlErr domain.SQLStateError
	if errors.As(err, &sqlErr) {
		return err
	}
	args = append(args, err)
	return domain.ErrInternalExecution(format+": %v", args...)
}
