package streamproto

import "encoding/json"

type TableRefId struct {
	DatabaseId int64 `json:"database_id"`
	SchemaId   int64 `json:"schema_id"`
	TableId    int64 `json:"table_id"`
}

type ActorPlacement struct {
	ActorId  int32  `json:"actor_id"`
	Operator string `json:"operator,omitempty"`
	Node     string `json:"node,omitempty"`
}

type Dataflow struct {
	DataflowId       string            `json:"dataflow_id,omitempty"`
	TableRefId       *TableRefId       `json:"table_ref_id,omitempty"`
	Actors           []*ActorPlacement `json:"actors,omitempty"`
	CreatedAtRfc3339 string            `json:"created_at_rfc3339,omitempty"`
}

type CreateMaterializedViewRequest struct {
	TableRefId *TableRefId     `json:"table_ref_id,omitempty"`
	StreamNode json.RawMessage `json:"stream_node,omitempty"`
}

type CreateMaterializedViewResponse struct {
	Dataflow *Dataflow `json:"dataflow,omitempty"`
}

type DropMaterializedViewRequest struct {
	TableRefId *TableRefId `json:"table_ref_id,omitempty"`
}

type DropMaterializedViewResponse struct {
	Dropped bool `json:"dropped,omitempty"`
}

type ListDataflowsRequest struct{}

type ListDataflowsResponse struct {
	Dataflows []*Dataflow `json:"dataflows,omitempty"`
}
