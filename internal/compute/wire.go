package compute

import (
	"fmt"

	computeproto "streamddl/internal/compute/proto"
	"streamddl/internal/plan"
)

// TaskStatusCode is a compute node's acknowledgment of a task request.
type TaskStatusCode int32

// Task status codes. Shared by the broadcaster and the node's task server so
// that both ends of the wire agree at compile time.
const (
	TaskStatusOK              TaskStatusCode = 0
	TaskStatusInvalidArgument TaskStatusCode = 1
	TaskStatusAlreadyExists   TaskStatusCode = 2
	TaskStatusInternal        TaskStatusCode = 3
)

func (c TaskStatusCode) String() string {
	switch c {
	case TaskStatusOK:
		return "OK"
	case TaskStatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case TaskStatusAlreadyExists:
		return "ALREADY_EXISTS"
	case TaskStatusInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("CODE_%d", int32(c))
	}
}

// TaskStatus is the status carried in task responses.
type TaskStatus struct {
	Code    TaskStatusCode
	Message string
}

// OK reports whether the node accepted the request.
func (s TaskStatus) OK() bool { return s.Code == TaskStatusOK }

func (s TaskStatus) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}

// CreateTaskRequest asks a node to register a plan fragment under TaskID.
type CreateTaskRequest struct {
	TaskID    string
	Plan      *plan.PlanFragment
	RequestID string
}

// CreateTaskResponse acknowledges a CreateTaskRequest.
type CreateTaskResponse struct {
	TaskID string
	Status TaskStatus
}

// TaskSinkID addresses one output sink of a task. Drop tasks have only sink 0.
type TaskSinkID struct {
	TaskID string
	SinkID int32
}

// GetDataRequest pulls a task's sink, which forces the task to run.
type GetDataRequest struct {
	SinkID TaskSinkID
}

// GetDataResponse is the result of pulling a sink.
type GetDataResponse struct {
	Status   TaskStatus
	RowCount int64
}

// HealthResponse reports node liveness.
type HealthResponse struct {
	Status        string
	UptimeSeconds int64
	PendingTasks  int64
	ExecutedTasks int64
	DuckDBVersion string
}

// StatusToProto converts a task status for the wire.
func StatusToProto(s TaskStatus) *computeproto.TaskStatus {
	return &computeproto.TaskStatus{Code: int32(s.Code), Message: s.Message}
}

// StatusFromProto converts a wire status. A missing status is treated as an
// internal failure so that a silent peer is never mistaken for success.
func StatusFromProto(s *computeproto.TaskStatus) TaskStatus {
	if s == nil {
		return TaskStatus{Code: TaskStatusInternal, Message: "missing task status"}
	}
	return TaskStatus{Code: TaskStatusCode(s.Code), Message: s.Message}
}

func createTaskRequestToProto(req CreateTaskRequest) (*computeproto.CreateTaskRequest, error) {
	payload, err := plan.MarshalFragment(req.Plan)
	if err != nil {
		return nil, err
	}
	return &computeproto.CreateTaskRequest{
		TaskId:  req.TaskID,
		Plan:    payload,
		Context: &computeproto.RequestContext{RequestId: req.RequestID},
	}, nil
}

func createTaskResponseFromProto(resp *computeproto.CreateTaskResponse) CreateTaskResponse {
	if resp == nil {
		return CreateTaskResponse{Status: StatusFromProto(nil)}
	}
	return CreateTaskResponse{TaskID: resp.TaskId, Status: StatusFromProto(resp.Status)}
}

func getDataResponseFromProto(resp *computeproto.GetDataResponse) GetDataResponse {
	if resp == nil {
		return GetDataResponse{Status: StatusFromProto(nil)}
	}
	return GetDataResponse{Status: StatusFromProto(resp.Status), RowCount: resp.RowCount}
}

func healthResponseFromProto(resp *computeproto.HealthResponse) HealthResponse {
	if resp == nil {
		return HealthResponse{}
	}
	return HealthResponse{
		Status:        resp.Status,
		UptimeSeconds: resp.UptimeSeconds,
		PendingTasks:  resp.PendingTasks,
		ExecutedTasks: resp.ExecutedTasks,
		DuckDBVersion: resp.DuckdbVersion,
	}
}
