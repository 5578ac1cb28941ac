package computeproto

import "encoding/json"

type RequestContext struct {
	RequestId string `json:"request_id,omitempty"`
}

// TaskStatus codes mirror compute.TaskStatusCode.
type TaskStatus struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
}

type CreateTaskRequest struct {
	TaskId  string          `json:"task_id,omitempty"`
	Plan    json.RawMessage `json:"plan,omitempty"`
	Context *RequestContext `json:"context,omitempty"`
}

type CreateTaskResponse struct {
	TaskId string      `json:"task_id,omitempty"`
	Status *TaskStatus `json:"status,omitempty"`
}

type TaskSinkId struct {
	TaskId string `json:"task_id,omitempty"`
	SinkId int32  `json:"sink_id"`
}

type GetDataRequest struct {
	SinkId *TaskSinkId `json:"sink_id,omitempty"`
}

type GetDataResponse struct {
	Status   *TaskStatus `json:"status,omitempty"`
	RowCount int64       `json:"row_count,omitempty"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status        string `json:"status,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	PendingTasks  int64  `json:"pending_tasks,omitempty"`
	ExecutedTasks int64  `json:"executed_tasks,omitempty"`
	DuckdbVersion string `json:"duckdb_version,omitempty"`
}
