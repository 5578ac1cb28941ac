package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "streamddl/internal/db"
	"streamddl/internal/db/repository"
	"streamddl/internal/domain"
)

var devPublic = domain.SchemaName{Database: "dev", Schema: "public"}

func qualified(table string) domain.TableName {
	return domain.TableName{Database: "dev", Schema: "public", Table: table}
}

func setupCoordinator(t *testing.T) (*Coordinator, *repository.CatalogRepo) {
	t.Helper()
	ms := internaldb.OpenTestMetastore(t)
	repo := repository.NewCatalogRepo(ms.Write)
	return NewCoordinator(repo, nil), repo
}

func TestResolveDrop_Missing(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	_, err := c.ResolveDrop(ctx, qualified("ghost"), false)
	var undefined *domain.UndefinedEntityError
	require.ErrorAs(t, err, &undefined)
	assert.Contains(t, err.Error(), "dev.public.ghost")

	entities, err := c.ResolveDrop(ctx, qualified("ghost"), true)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestResolveDrop_PlainTableAndSource(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	_, err := c.RegisterTable(ctx, domain.CreateTableRequest{Name: qualified("t"), Kind: domain.TableKindTable})
	require.NoError(t, err)
	_, err = c.RegisterTable(ctx, domain.CreateTableRequest{Name: qualified("clicks"), Kind: domain.TableKindSource, IsSource: true})
	require.NoError(t, err)

	entities, err := c.ResolveDrop(ctx, qualified("t"), false)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.False(t, entities[0].IsSource)

	entities, err = c.ResolveDrop(ctx, qualified("clicks"), false)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.True(t, entities[0].IsSource)
}

func TestResolveDrop_AssociatedPair(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	view, source, err := c.RegisterAssociatedPair(ctx, qualified("orders"), []domain.ColumnDesc{{Name: "id", Type: "BIGINT"}})
	require.NoError(t, err)
	assert.True(t, view.IsAssociatedMaterializedView)
	assert.True(t, source.IsAssociatedSource())

	entities, err := c.ResolveDrop(ctx, qualified("orders"), false)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, view.Ref, entities[0].Ref)
	assert.Equal(t, source.Ref, entities[1].Ref)
	assert.Equal(t, "__src_orders", entities[1].Name.Table)
}

func TestResolveDrop_AssociatedSourceDirectly(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	_, _, err := c.RegisterAssociatedPair(ctx, qualified("orders"), nil)
	require.NoError(t, err)

	_, err = c.ResolveDrop(ctx, qualified("__src_orders"), false)
	var dependent *domain.DependentObjectError
	require.ErrorAs(t, err, &dependent)
	assert.Contains(t, err.Error(), "dev.public.orders")
}

func TestResolveDrop_MissingAssociatedSource(t *testing.T) {
	c, repo := setupCoordinator(t)
	ctx := context.Background()

	_, _, err := c.RegisterAssociatedPair(ctx, qualified("orders"), nil)
	require.NoError(t, err)
	require.NoError(t, repo.DropTable(ctx, qualified("__src_orders")))

	_, err = c.ResolveDrop(ctx, qualified("orders"), false)
	var internal *domain.InternalExecutionError
	require.ErrorAs(t, err, &internal)
	assert.Contains(t, err.Error(), "__src_orders")
}

func TestDrop_VisibleToLaterLookups(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	e, err := c.RegisterTable(ctx, domain.CreateTableRequest{Name: qualified("t"), Kind: domain.TableKindTable})
	require.NoError(t, err)

	err = c.WithTx(ctx, func(tx *Coordinator) error {
		require.NoError(t, tx.Drop(ctx, e))
		_, err := tx.Lookup(ctx, qualified("t"))
		var undefined *domain.UndefinedEntityError
		require.ErrorAs(t, err, &undefined)
		return nil
	})
	require.NoError(t, err)

	err = c.Drop(ctx, e)
	var undefined *domain.UndefinedEntityError
	require.ErrorAs(t, err, &undefined)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	e, err := c.RegisterTable(ctx, domain.CreateTableRequest{Name: qualified("t"), Kind: domain.TableKindTable})
	require.NoError(t, err)

	failure := errors.New("node rejected task")
	err = c.WithTx(ctx, func(tx *Coordinator) error {
		if err := tx.Drop(ctx, e); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, failure)

	_, err = c.Lookup(ctx, qualified("t"))
	require.NoError(t, err)
}

func TestRegisterMaterializedView(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	info := domain.MaterializedViewInfo{
		Columns:      []domain.ColumnDesc{{Name: "n", Type: "BIGINT"}},
		Materialized: true,
	}
	view, err := c.RegisterMaterializedView(ctx, devPublic, "mv", info)
	require.NoError(t, err)
	assert.NotZero(t, view.ID())
	assert.False(t, view.IsAssociatedMaterializedView)

	require.NoError(t, c.BindStreamPlan(ctx, view, []byte(`{"x":1}`)))
	assert.Equal(t, []byte(`{"x":1}`), view.StreamPlan)

	_, err = c.RegisterMaterializedView(ctx, devPublic, "mv", info)
	var dup *domain.DuplicateEntityError
	require.ErrorAs(t, err, &dup)

	_, err = c.RegisterMaterializedView(ctx, domain.SchemaName{Database: "dev", Schema: "nope"}, "mv", info)
	var undefined *domain.UndefinedEntityError
	require.ErrorAs(t, err, &undefined)
}

func TestRegisterTable_RejectsAssociatedFlag(t *testing.T) {
	c, _ := setupCoordinator(t)

	_, err := c.RegisterTable(context.Background(), domain.CreateTableRequest{
		Name:                         qualified("x"),
		Kind:                         domain.TableKindMaterializedView,
		IsAssociatedMaterializedView: true,
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}
