// Package catalog resolves and mutates catalog relations on behalf of DDL
// statements, including the cascade between a materialized view and its
// generated source.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"streamddl/internal/domain"
)

// Coordinator is the catalog entry point for DDL handlers.
type Coordinator struct {
	store  domain.CatalogStore
	repo   domain.CatalogRepository
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator over store.
func NewCoordinator(store domain.CatalogStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, repo: store, logger: logger}
}

// WithTx runs fn with a Coordinator whose reads and writes all go through one
// catalog transaction. Every mutation made through it is rolled back when fn
// returns an error.
func (c *Coordinator) WithTx(ctx context.Context, fn func(tx *Coordinator) error) error {
	return c.store.InTx(ctx, func(repo domain.CatalogRepository) error {
		return fn(&Coordinator{store: c.store, repo: repo, logger: c.logger})
	})
}

// Lookup returns the relation called name.
func (c *Coordinator) Lookup(ctx context.Context, name domain.TableName) (*domain.TableEntity, error) {
	e, err := c.repo.GetTable(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUndefinedEntity("relation %q does not exist", name.String())
		}
		return nil, err
	}
	return e, nil
}

// ResolveDrop returns the entities a DROP of name acts on, in drop order.
//
// A missing name is an UndefinedEntityError unless ifExists is set, in which
// case the result is empty. Dropping the view half of an associated pair
// returns the view followed by its generated source.
func (c *Coordinator) ResolveDrop(ctx context.Context, name domain.TableName, ifExists bool) ([]*domain.TableEntity, error) {
	entity, err := c.repo.GetTable(ctx, name)
	if err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("resolve %s: %w", name.String(), err)
		}
		if ifExists {
			c.logger.Debug("drop target does not exist, skipping", "table", name.String())
			return nil, nil
		}
		return nil, domain.ErrUndefinedEntity("table %q does not exist", name.String())
	}

	if !entity.IsAssociatedMaterializedView {
		return []*domain.TableEntity{entity}, nil
	}

	if entity.IsAssociatedSource() {
		view, ok := domain.AssociatedViewName(entity.Name)
		if !ok {
			return nil, domain.ErrInternalExecution("associated source %q does not follow the generated naming convention", entity.Name.String())
		}
		return nil, domain.ErrDependentObject("cannot drop %q because materialized view %q depends on it; drop %q instead",
			entity.Name.String(), view.String(), view.String())
	}

	sourceName := domain.AssociatedSourceName(entity.Name)
	source, err := c.repo.GetTable(ctx, sourceName)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInternalExecution("associated source %q of materialized view %q is missing from the catalog",
				sourceName.String(), entity.Name.String())
		}
		return nil, fmt.Errorf("resolve associated source %s: %w", sourceName.String(), err)
	}
	return []*domain.TableEntity{entity, source}, nil
}

// Drop removes entity from the catalog.
func (c *Coordinator) Drop(ctx context.Context, entity *domain.TableEntity) error {
	if err := c.repo.DropTable(ctx, entity.Name); err != nil {
		if isNotFound(err) {
			return domain.ErrUndefinedEntity("table %q does not exist", entity.Name.String())
		}
		return fmt.Errorf("drop %s: %w", entity.Name.String(), err)
	}
	c.logger.Debug("catalog entry removed", "table", entity.Name.String(), "table_id", entity.ID())
	return nil
}

// RegisterMaterializedView adds a materialized view called name to schema and
// returns it with its assigned identity.
func (c *Coordinator) RegisterMaterializedView(ctx context.Context, schema domain.SchemaName, name string, info domain.MaterializedViewInfo) (*domain.MaterializedView, error) {
	view, err := c.repo.CreateMaterializedView(ctx, schema, name, info)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			return nil, domain.ErrDuplicateEntity("relation %q already exists", schema.String()+"."+name)
		case isNotFound(err):
			return nil, domain.ErrUndefinedEntity("schema %q does not exist", schema.String())
		}
		return nil, fmt.Errorf("register materialized view %s.%s: %w", schema.String(), name, err)
	}
	c.logger.Debug("materialized view registered", "view", view.Name.String(), "table_id", view.ID())
	return view, nil
}

// BindStreamPlan records the serialized stream node that maintains view.
func (c *Coordinator) BindStreamPlan(ctx context.Context, view *domain.MaterializedView, node []byte) error {
	if err := c.repo.SetStreamPlan(ctx, view.ID(), node); err != nil {
		return fmt.Errorf("bind stream plan of %s: %w", view.Name.String(), err)
	}
	view.StreamPlan = node
	return nil
}

// RegisterTable adds a plain table or source.
func (c *Coordinator) RegisterTable(ctx context.Context, req domain.CreateTableRequest) (*domain.TableEntity, error) {
	if req.IsAssociatedMaterializedView {
		return nil, domain.ErrValidation("associated relations are registered in pairs")
	}
	return c.repo.CreateTable(ctx, req)
}

// EnsureSchema returns schema, creating it if needed.
func (c *Coordinator) EnsureSchema(ctx context.Context, schema domain.SchemaName) (*domain.SchemaRef, error) {
	return c.repo.EnsureSchema(ctx, schema)
}

// RegisterAssociatedPair creates a materialized view and the generated source
// that feeds it. Both halves carry the associated flag so that a later DROP
// of the view removes them together.
func (c *Coordinator) RegisterAssociatedPair(ctx context.Context, view domain.TableName, columns []domain.ColumnDesc) (*domain.TableEntity, *domain.TableEntity, error) {
	var viewEntity, sourceEntity *domain.TableEntity
	err := c.WithTx(ctx, func(tx *Coordinator) error {
		var err error
		sourceEntity, err = tx.repo.CreateTable(ctx, domain.CreateTableRequest{
			Name:                         domain.AssociatedSourceName(view),
			Kind:                         domain.TableKindSource,
			Columns:                      columns,
			IsSource:                     true,
			IsAssociatedMaterializedView: true,
		})
		if err != nil {
			return err
		}
		viewEntity, err = tx.repo.CreateTable(ctx, domain.CreateTableRequest{
			Name:                         view,
			Kind:                         domain.TableKindMaterializedView,
			Columns:                      columns,
			IsAssociatedMaterializedView: true,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return viewEntity, sourceEntity, nil
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}
