package handler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamddl/internal/catalog"
	"streamddl/internal/compute"
	internaldb "streamddl/internal/db"
	"streamddl/internal/db/repository"
	"streamddl/internal/domain"
	"streamddl/internal/handler"
	"streamddl/internal/plan"
	"streamddl/internal/planner"
	"streamddl/internal/stream"
)

var session = domain.Session{User: "dev", Database: "dev", Schema: "public"}

func qualified(table string) domain.TableName {
	return domain.TableName{Database: "dev", Schema: "public", Table: table}
}

// taskRecorder counts node RPCs across every client the broadcaster uses.
type taskRecorder struct {
	mu       sync.Mutex
	creates  []compute.CreateTaskRequest
	getDatas []compute.GetDataRequest
	reject   bool
}

type fakeNodeClient struct {
	rec *taskRecorder
}

func (c *fakeNodeClient) CreateTask(_ context.Context, req compute.CreateTaskRequest) (compute.CreateTaskResponse, error) {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	c.rec.creates = append(c.rec.creates, req)
	if c.rec.reject {
		return compute.CreateTaskResponse{TaskID: req.TaskID, Status: compute.TaskStatus{Code: compute.TaskStatusInternal, Message: "disk full"}}, nil
	}
	return compute.CreateTaskResponse{TaskID: req.TaskID}, nil
}

func (c *fakeNodeClient) GetData(_ context.Context, req compute.GetDataRequest) (compute.GetDataResponse, error) {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	c.rec.getDatas = append(c.rec.getDatas, req)
	return compute.GetDataResponse{}, nil
}

func (c *fakeNodeClient) Health(context.Context) (compute.HealthResponse, error) {
	return compute.HealthResponse{Status: "ok"}, nil
}

func (c *fakeNodeClient) Close() error { return nil }

type fakeProvider struct {
	rec *taskRecorder
}

func (p *fakeProvider) GetOrCreate(*domain.WorkerNode) (compute.NodeClient, error) {
	return &fakeNodeClient{rec: p.rec}, nil
}

type staticNodes []domain.WorkerNode

func (n staticNodes) AllNodes() []domain.WorkerNode { return n }

// teardownManager is a stream manager with the teardown capability.
type teardownManager struct {
	mu      sync.Mutex
	created []*plan.StreamNode
	dropped []domain.TableRefID
}

func (m *teardownManager) Mode() stream.Mode { return stream.ModeRemote }

func (m *teardownManager) CreateMaterializedView(_ context.Context, node *plan.StreamNode, _ domain.TableRefID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, node)
	return nil
}

func (m *teardownManager) Teardown() (stream.DAGTeardown, bool) { return m, true }

func (m *teardownManager) DropMaterializedView(_ context.Context, ref domain.TableRefID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, ref)
	return nil
}

type env struct {
	coordinator *catalog.Coordinator
	registry    *handler.Registry
	tasks       *taskRecorder
}

func setup(t *testing.T, manager stream.Manager, nodeCount int) *env {
	t.Helper()
	ms := internaldb.OpenTestMetastore(t)
	coord := catalog.NewCoordinator(repository.NewCatalogRepo(ms.Write), nil)

	rec := &taskRecorder{}
	nodes := make(staticNodes, nodeCount)
	for i := range nodes {
		nodes[i] = domain.WorkerNode{ID: int64(i + 1), Name: "compute", Endpoint: "grpc://127.0.0.1:1"}
	}
	broadcaster := compute.NewBroadcaster(&fakeProvider{rec: rec}, 4, nil)
	delegate := stream.NewDelegate(manager, nil)

	reg := handler.NewRegistry(nil)
	reg.Register(domain.StatementDropTable, handler.NewDropTableHandler(coord, broadcaster, nodes, delegate, nil))
	reg.Register(domain.StatementCreateMaterializedView, handler.NewCreateMaterializedViewHandler(coord, planner.New(coord, nil), delegate, nil))
	return &env{coordinator: coord, registry: reg, tasks: rec}
}

func (e *env) registerOrders(t *testing.T) *domain.TableEntity {
	t.Helper()
	entity, err := e.coordinator.RegisterTable(context.Background(), domain.CreateTableRequest{
		Name: qualified("orders"),
		Kind: domain.TableKindTable,
		Columns: []domain.ColumnDesc{
			{Name: "id", Type: "BIGINT"},
			{Name: "region", Type: "VARCHAR"},
			{Name: "amount", Type: "DOUBLE"},
		},
	})
	require.NoError(t, err)
	return entity
}

func TestDropTable_Missing(t *testing.T) {
	e := setup(t, &teardownManager{}, 2)
	ctx := context.Background()

	_, err := e.registry.Execute(ctx, session, "DROP TABLE ghost")
	var undefined *domain.UndefinedEntityError
	require.ErrorAs(t, err, &undefined)

	res, err := e.registry.Execute(ctx, session, "DROP TABLE IF EXISTS ghost")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementDropTable, res.Kind)
	assert.Zero(t, res.RowCount)
	assert.Empty(t, e.tasks.creates)
	assert.Empty(t, e.tasks.getDatas)
}

func TestDropTable_AssociatedPair(t *testing.T) {
	mgr := &teardownManager{}
	e := setup(t, mgr, 3)
	ctx := context.Background()

	view, source, err := e.coordinator.RegisterAssociatedPair(ctx, qualified("orders"), []domain.ColumnDesc{{Name: "id", Type: "BIGINT"}})
	require.NoError(t, err)

	_, err = e.registry.Execute(ctx, session, "DROP TABLE orders")
	require.NoError(t, err)

	var undefined *domain.UndefinedEntityError
	_, err = e.coordinator.Lookup(ctx, qualified("orders"))
	require.ErrorAs(t, err, &undefined)
	_, err = e.coordinator.Lookup(ctx, qualified("__src_orders"))
	require.ErrorAs(t, err, &undefined)

	assert.Empty(t, e.tasks.creates, "associated relations are never broadcast")
	assert.Equal(t, []domain.TableRefID{view.Ref, source.Ref}, mgr.dropped)
}

func TestDropTable_AssociatedSourceDirectly(t *testing.T) {
	mgr := &teardownManager{}
	e := setup(t, mgr, 1)
	ctx := context.Background()

	_, _, err := e.coordinator.RegisterAssociatedPair(ctx, qualified("orders"), nil)
	require.NoError(t, err)

	_, err = e.registry.Execute(ctx, session, "DROP TABLE __src_orders")
	var dependent *domain.DependentObjectError
	require.ErrorAs(t, err, &dependent)
	assert.Empty(t, mgr.dropped)
}

func TestDropTable_PlainTableBroadcastsToEveryNode(t *testing.T) {
	e := setup(t, &teardownManager{}, 3)
	ctx := context.Background()
	entity := e.registerOrders(t)

	_, err := e.registry.Execute(ctx, session, "DROP TABLE dev.public.orders")
	require.NoError(t, err)

	require.Len(t, e.tasks.creates, 3)
	require.Len(t, e.tasks.getDatas, 3)
	want := plan.BuildDropFragment(entity)
	for _, req := range e.tasks.creates {
		assert.Equal(t, want, req.Plan)
	}
	for _, req := range e.tasks.getDatas {
		assert.Equal(t, compute.DropSinkID, req.SinkID.SinkID)
	}

	_, err = e.coordinator.Lookup(ctx, qualified("orders"))
	var undefined *domain.UndefinedEntityError
	require.ErrorAs(t, err, &undefined)
}

func TestDropTable_NodeRejectionRollsBack(t *testing.T) {
	e := setup(t, &teardownManager{}, 2)
	ctx := context.Background()
	e.registerOrders(t)
	e.tasks.reject = true

	_, err := e.registry.Execute(ctx, session, "DROP TABLE orders")
	var internal *domain.InternalExecutionError
	require.ErrorAs(t, err, &internal)

	_, err = e.coordinator.Lookup(ctx, qualified("orders"))
	require.NoError(t, err, "catalog entry survives a failed broadcast")
}

func TestDropTable_LocalManagerCannotDropView(t *testing.T) {
	e := setup(t, stream.NewLocalManager(), 2)
	ctx := context.Background()

	_, _, err := e.coordinator.RegisterAssociatedPair(ctx, qualified("orders"), nil)
	require.NoError(t, err)

	_, err = e.registry.Execute(ctx, session, "DROP TABLE orders")
	var internal *domain.InternalExecutionError
	require.ErrorAs(t, err, &internal)

	_, err = e.coordinator.Lookup(ctx, qualified("orders"))
	require.NoError(t, err)
	_, err = e.coordinator.Lookup(ctx, qualified("__src_orders"))
	require.NoError(t, err)
	assert.Empty(t, e.tasks.creates)
}

func TestDropTable_StandaloneView(t *testing.T) {
	const create = "CREATE MATERIALIZED VIEW totals AS SELECT region, sum(amount) AS total FROM orders GROUP BY region"

	t.Run("teardown manager", func(t *testing.T) {
		mgr := &teardownManager{}
		e := setup(t, mgr, 2)
		ctx := context.Background()
		e.registerOrders(t)

		_, err := e.registry.Execute(ctx, session, create)
		require.NoError(t, err)
		view, err := e.coordinator.Lookup(ctx, qualified("totals"))
		require.NoError(t, err)
		assert.False(t, view.IsAssociatedMaterializedView)

		_, err = e.registry.Execute(ctx, session, "DROP TABLE totals")
		require.NoError(t, err)

		assert.Equal(t, []domain.TableRefID{view.Ref}, mgr.dropped)
		assert.Empty(t, e.tasks.creates, "views are never broadcast to compute nodes")
		_, err = e.coordinator.Lookup(ctx, qualified("totals"))
		var undefined *domain.UndefinedEntityError
		require.ErrorAs(t, err, &undefined)
		_, err = e.coordinator.Lookup(ctx, qualified("orders"))
		require.NoError(t, err, "the queried table is untouched")
	})

	t.Run("local manager", func(t *testing.T) {
		mgr := stream.NewLocalManager()
		e := setup(t, mgr, 1)
		ctx := context.Background()
		e.registerOrders(t)

		_, err := e.registry.Execute(ctx, session, create)
		require.NoError(t, err)
		view, err := e.coordinator.Lookup(ctx, qualified("totals"))
		require.NoError(t, err)

		_, err = e.registry.Execute(ctx, session, "DROP TABLE totals")
		var internal *domain.InternalExecutionError
		require.ErrorAs(t, err, &internal)

		_, err = e.coordinator.Lookup(ctx, qualified("totals"))
		require.NoError(t, err, "catalog unchanged")
		_, ok := mgr.Dataflow(view.Ref)
		assert.True(t, ok, "dataflow still deployed")
		assert.Empty(t, e.tasks.creates)
	})
}

func TestCreateMaterializedView_RequiresAliases(t *testing.T) {
	mgr := &teardownManager{}
	e := setup(t, mgr, 1)
	ctx := context.Background()
	e.registerOrders(t)

	_, err := e.registry.Execute(ctx, session, "CREATE MATERIALIZED VIEW totals AS SELECT region, sum(amount) FROM orders GROUP BY region")
	var invalid *domain.InvalidColumnDefinitionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "alias")

	_, err = e.coordinator.Lookup(ctx, qualified("totals"))
	var undefined *domain.UndefinedEntityError
	require.ErrorAs(t, err, &undefined)
	assert.Empty(t, mgr.created)
}

func TestCreateMaterializedView_BindsCatalogID(t *testing.T) {
	mgr := &teardownManager{}
	e := setup(t, mgr, 1)
	ctx := context.Background()
	e.registerOrders(t)

	res, err := e.registry.Execute(ctx, session, "CREATE MATERIALIZED VIEW totals AS SELECT region, sum(amount) AS total FROM orders GROUP BY region ORDER BY total DESC")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementCreateMaterializedView, res.Kind)

	view, err := e.coordinator.Lookup(ctx, qualified("totals"))
	require.NoError(t, err)
	assert.Equal(t, domain.TableKindMaterializedView, view.Kind)
	assert.Equal(t, []string{"region", "total"}, columnNames(view.Columns))

	require.Len(t, mgr.created, 1)
	node := mgr.created[0]
	assert.Equal(t, view.Ref, node.TableRefID)
	decoded, err := node.Decode()
	require.NoError(t, err)
	assert.Equal(t, view.Ref, decoded.TableID())
	assert.Equal(t, []domain.FieldCollation{{Index: 1, Direction: domain.SortDescending, NullsFirst: true}}, decoded.Collation().Fields)
}

func TestCreateMaterializedView_DuplicateName(t *testing.T) {
	e := setup(t, stream.NewLocalManager(), 1)
	ctx := context.Background()
	e.registerOrders(t)

	_, err := e.registry.Execute(ctx, session, "CREATE MATERIALIZED VIEW orders AS SELECT id FROM orders")
	var dup *domain.DuplicateEntityError
	require.ErrorAs(t, err, &dup)
}

func TestCreateMaterializedView_LocalManagerDeploys(t *testing.T) {
	mgr := stream.NewLocalManager()
	e := setup(t, mgr, 1)
	ctx := context.Background()
	e.registerOrders(t)

	_, err := e.registry.Execute(ctx, session, "CREATE MATERIALIZED VIEW eu AS SELECT id, amount FROM orders WHERE region = 'eu'")
	require.NoError(t, err)

	view, err := e.coordinator.Lookup(ctx, qualified("eu"))
	require.NoError(t, err)
	dataflow, ok := mgr.Dataflow(view.Ref)
	require.True(t, ok)
	assert.Equal(t, view.Ref, dataflow.TableID())
}

func TestRegistry_Unsupported(t *testing.T) {
	e := setup(t, &teardownManager{}, 1)

	_, err := e.registry.Execute(context.Background(), session, "CREATE TABLE t (id INT)")
	var unsupported *domain.UnsupportedStatementError
	require.ErrorAs(t, err, &unsupported)

	empty := handler.NewRegistry(nil)
	_, err = empty.Execute(context.Background(), session, "DROP TABLE t")
	require.ErrorAs(t, err, &unsupported)
}

func columnNames(cols []domain.ColumnDesc) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
