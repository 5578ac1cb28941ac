// Package compute dispatches plan fragments to the cluster's compute nodes.
package compute

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
	"streamddl/internal/rpc"
)

// DropSinkID is the only sink a drop task exposes.
const DropSinkID int32 = 0

// Broadcaster sends one plan fragment to every node it is given and forces
// each resulting task to run.
type Broadcaster struct {
	clients     ClientProvider
	parallelism int
	logger      *slog.Logger
}

// NewBroadcaster creates a Broadcaster. parallelism bounds concurrent node
// RPCs; zero or less means one goroutine per node.
func NewBroadcaster(clients ClientProvider, parallelism int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{clients: clients, parallelism: parallelism, logger: logger}
}

// Broadcast creates a task for fragment on every node and pulls its sink.
// Each node gets its own task id. The first failure cancels the remaining
// calls and is returned as an InternalExecutionError. There is no retry and
// no compensation on nodes that already ran the task.
func (b *Broadcaster) Broadcast(ctx context.Context, fragment *plan.PlanFragment, nodes []domain.WorkerNode) error {
	if err := fragment.Validate(); err != nil {
		return domain.ErrInternalExecution("invalid plan fragment: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if b.parallelism > 0 {
		g.SetLimit(b.parallelism)
	}
	for i := range nodes {
		node := &nodes[i]
		g.Go(func() error {
			return b.dispatch(gctx, fragment, node)
		})
	}
	return g.Wait()
}

func (b *Broadcaster) dispatch(ctx context.Context, fragment *plan.PlanFragment, node *domain.WorkerNode) error {
	client, err := b.clients.GetOrCreate(node)
	if err != nil {
		return domain.ErrInternalExecution("connect to node %s: %v", node.Name, err)
	}

	taskID := uuid.NewString()
	created, err := client.CreateTask(ctx, CreateTaskRequest{TaskID: taskID, Plan: fragment, RequestID: uuid.NewString()})
	if err != nil {
		if rpc.IsUnavailable(err) {
			return domain.ErrInternalExecution("node %s is unavailable: %v", node.Name, err)
		}
		return domain.ErrInternalExecution("create task %s on node %s: %v", taskID, node.Name, err)
	}
	if !created.Status.OK() {
		return domain.ErrInternalExecution("node %s rejected task %s: %s", node.Name, taskID, created.Status)
	}

	data, err := client.GetData(ctx, GetDataRequest{SinkID: TaskSinkID{TaskID: taskID, SinkID: DropSinkID}})
	if err != nil {
		return domain.ErrInternalExecution("run task %s on node %s: %v", taskID, node.Name, err)
	}
	if !data.Status.OK() {
		return domain.ErrInternalExecution("task %s failed on node %s: %s", taskID, node.Name, data.Status)
	}

	b.logger.Debug("task executed on node", "node", node.Name, "task_id", taskID)
	return nil
}
