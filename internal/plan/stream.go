package plan

import (
	"encoding/json"
	"fmt"

	"streamddl/internal/domain"
)

// StreamOperator names a dataflow operator.
type StreamOperator string

// Stream operators.
const (
	OperatorTableScan   StreamOperator = "TABLE_SCAN"
	OperatorFilter      StreamOperator = "FILTER"
	OperatorProject     StreamOperator = "PROJECT"
	OperatorHashAgg     StreamOperator = "HASH_AGG"
	OperatorMaterialize StreamOperator = "MATERIALIZE"
)

// OutputColumn is one output column of a stream operator.
type OutputColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Generated marks a name the planner invented for an unnamed expression.
	Generated bool `json:"generated,omitempty"`
}

// StreamPlanNode is one operator of a streaming dataflow.
type StreamPlanNode struct {
	Operator   StreamOperator     `json:"operator"`
	TableRefID *domain.TableRefID `json:"table_ref_id,omitempty"`
	Columns    []OutputColumn     `json:"columns"`
	Exprs      []string           `json:"exprs,omitempty"`
	GroupKeys  []int              `json:"group_keys,omitempty"`
	Predicate  string             `json:"predicate,omitempty"`
	Collation  *domain.Collation  `json:"collation,omitempty"`
	Inputs     []*StreamPlanNode  `json:"inputs,omitempty"`
}

// StreamingPlan is the dataflow that maintains a materialized view. Its root
// is always a MATERIALIZE operator.
type StreamingPlan struct {
	root *StreamPlanNode
}

// NewStreamingPlan wraps root, which must be a MATERIALIZE operator.
func NewStreamingPlan(root *StreamPlanNode) (*StreamingPlan, error) {
	if root == nil || root.Operator != OperatorMaterialize {
		return nil, fmt.Errorf("streaming plan root must be a %s operator", OperatorMaterialize)
	}
	return &StreamingPlan{root: root}, nil
}

// Root returns the MATERIALIZE operator.
func (p *StreamingPlan) Root() *StreamPlanNode { return p.root }

// OutputColumns returns the view's output columns in order.
func (p *StreamingPlan) OutputColumns() []OutputColumn {
	return p.root.Columns
}

// Columns returns the output columns as catalog column definitions.
func (p *StreamingPlan) Columns() []domain.ColumnDesc {
	out := make([]domain.ColumnDesc, len(p.root.Columns))
	for i, c := range p.root.Columns {
		out[i] = domain.ColumnDesc{Name: c.Name, Type: c.Type, Nullable: true}
	}
	return out
}

// Collation returns the order the view is kept in.
func (p *StreamingPlan) Collation() domain.Collation {
	if p.root.Collation == nil {
		return domain.Collation{}
	}
	return *p.root.Collation
}

// SetTableID binds the plan to the catalog id of the view it maintains.
func (p *StreamingPlan) SetTableID(ref domain.TableRefID) {
	r := ref
	p.root.TableRefID = &r
}

// TableID returns the bound view id, or the zero id when unbound.
func (p *StreamingPlan) TableID() domain.TableRefID {
	if p.root.TableRefID == nil {
		return domain.TableRefID{}
	}
	return *p.root.TableRefID
}

// Walk visits every operator depth-first, root first.
func (p *StreamingPlan) Walk(fn func(*StreamPlanNode)) {
	var visit func(n *StreamPlanNode)
	visit = func(n *StreamPlanNode) {
		fn(n)
		for _, in := range n.Inputs {
			visit(in)
		}
	}
	visit(p.root)
}

// StreamNode is a serialized streaming plan tagged with the id of the view it
// maintains.
type StreamNode struct {
	TableRefID domain.TableRefID `json:"table_ref_id"`
	Plan       json.RawMessage   `json:"plan"`
}

// Serialize encodes the plan. The plan must be bound with SetTableID first.
func (p *StreamingPlan) Serialize() (*StreamNode, error) {
	ref := p.TableID()
	if ref.IsZero() {
		return nil, fmt.Errorf("streaming plan is not bound to a table id")
	}
	data, err := json.Marshal(p.root)
	if err != nil {
		return nil, fmt.Errorf("encode streaming plan: %w", err)
	}
	return &StreamNode{TableRefID: ref, Plan: data}, nil
}

// Decode parses the serialized plan and checks it is bound to n.TableRefID.
func (n *StreamNode) Decode() (*StreamingPlan, error) {
	var root StreamPlanNode
	if err := json.Unmarshal(n.Plan, &root); err != nil {
		return nil, fmt.Errorf("decode streaming plan: %w", err)
	}
	p, err := NewStreamingPlan(&root)
	if err != nil {
		return nil, err
	}
	if p.TableID() != n.TableRefID {
		return nil, fmt.Errorf("stream node is tagged %s but its plan is bound to %s", n.TableRefID, p.TableID())
	}
	return p, nil
}
