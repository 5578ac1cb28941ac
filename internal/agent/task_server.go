// Package agent implements the compute node's task service. Plan fragments
// are registered by CreateTask and executed against the node's DuckDB when
// their sink is pulled with GetData.
package agent

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"streamddl/internal/compute"
	computeproto "streamddl/internal/compute/proto"
	"streamddl/internal/ddl"
	"streamddl/internal/plan"
)

// TaskServerConfig holds the parameters for a compute node task server.
type TaskServerConfig struct {
	DB        *sql.DB
	StartTime time.Time
	Logger    *slog.Logger
}

// TaskServer serves streamddl.compute.v1.TaskService.
type TaskServer struct {
	computeproto.UnimplementedTaskServiceServer

	cfg    TaskServerConfig
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*plan.PlanFragment

	executed atomic.Int64
}

// NewTaskServer creates a TaskServer over cfg.DB.
func NewTaskServer(cfg TaskServerConfig) *TaskServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return &TaskServer{cfg: cfg, logger: logger, tasks: make(map[string]*plan.PlanFragment)}
}

// RegisterTaskServer registers srv on registrar.
func RegisterTaskServer(registrar grpc.ServiceRegistrar, srv *TaskServer) {
	computeproto.RegisterTaskServiceServer(registrar, srv)
}

// CreateTask validates and registers a fragment. Rejections are reported in
// the response status, not as transport errors.
func (s *TaskServer) CreateTask(_ context.Context, req *computeproto.CreateTaskRequest) (*computeproto.CreateTaskResponse, error) {
	if req == nil || req.TaskId == "" {
		return rejected("", compute.TaskStatusInvalidArgument, "task_id is required"), nil
	}
	fragment, err := plan.UnmarshalFragment(req.Plan)
	if err != nil {
		return rejected(req.TaskId, compute.TaskStatusInvalidArgument, err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[req.TaskId]; exists {
		return rejected(req.TaskId, compute.TaskStatusAlreadyExists, "task already exists"), nil
	}
	s.tasks[req.TaskId] = fragment

	requestID := ""
	if req.Context != nil {
		requestID = req.Context.RequestId
	}
	s.logger.Debug("task registered", "task_id", req.TaskId, "request_id", requestID)
	return &computeproto.CreateTaskResponse{
		TaskId: req.TaskId,
		Status: compute.StatusToProto(compute.TaskStatus{Code: compute.TaskStatusOK}),
	}, nil
}

// GetData runs the task behind sink 0 once and forgets it.
func (s *TaskServer) GetData(ctx context.Context, req *computeproto.GetDataRequest) (*computeproto.GetDataResponse, error) {
	if req == nil || req.SinkId == nil || req.SinkId.TaskId == "" {
		return nil, status.Error(codes.InvalidArgument, "sink_id is required")
	}
	if req.SinkId.SinkId != compute.DropSinkID {
		return nil, status.Errorf(codes.InvalidArgument, "task has no sink %d", req.SinkId.SinkId)
	}

	fragment, ok := s.take(req.SinkId.TaskId)
	if !ok {
		return nil, status.Error(codes.NotFound, "task not found")
	}

	stmt, err := statementFor(fragment)
	if err != nil {
		return failed(err), nil
	}
	if _, err := s.cfg.DB.ExecContext(ctx, stmt); err != nil {
		s.logger.Error("task failed", "task_id", req.SinkId.TaskId, "error", err)
		return failed(err), nil
	}
	s.executed.Add(1)
	s.logger.Info("task executed", "task_id", req.SinkId.TaskId, "statement", stmt)
	return &computeproto.GetDataResponse{
		Status: compute.StatusToProto(compute.TaskStatus{Code: compute.TaskStatusOK}),
	}, nil
}

// Health reports uptime and task counters.
func (s *TaskServer) Health(ctx context.Context, _ *computeproto.HealthRequest) (*computeproto.HealthResponse, error) {
	var version string
	if err := s.cfg.DB.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &computeproto.HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.cfg.StartTime).Seconds()),
		PendingTasks:  int64(s.pending()),
		ExecutedTasks: s.executed.Load(),
		DuckdbVersion: version,
	}, nil
}

func (s *TaskServer) take(taskID string) (*plan.PlanFragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.tasks[taskID]
	delete(s.tasks, taskID)
	return f, ok
}

func (s *TaskServer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func statementFor(f *plan.PlanFragment) (string, error) {
	if n := f.Root.DropSource; n != nil {
		return ddl.DropNodeTable(n.TableRefID, true)
	}
	return ddl.DropNodeTable(f.Root.DropTable.TableRefID, false)
}

func rejected(taskID string, code compute.TaskStatusCode, msg string) *computeproto.CreateTaskResponse {
	return &computeproto.CreateTaskResponse{
		TaskId: taskID,
		Status: compute.StatusToProto(compute.TaskStatus{Code: code, Message: msg}),
	}
}

func failed(err error) *computeproto.GetDataResponse {
	return &computeproto.GetDataResponse{
		Status: compute.StatusToProto(compute.TaskStatus{Code: compute.TaskStatusInternal, Message: err.Error()}),
	}
}
