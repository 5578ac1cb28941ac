// Package plan defines the plan fragments broadcast to compute nodes and the
// streaming plans handed to the stream manager.
package plan

import (
	"encoding/json"
	"fmt"

	"streamddl/internal/domain"
)

// DistributionMode describes how an exchange distributes its input.
type DistributionMode string

// Distribution modes.
const (
	// DistributionSingle collects to one consumer. Drop fragments use it
	// because the drop runs once per node, not per partition.
	DistributionSingle    DistributionMode = "SINGLE"
	DistributionHash      DistributionMode = "HASH"
	DistributionBroadcast DistributionMode = "BROADCAST"
)

// ExchangeInfo wraps a fragment's root with its output distribution.
type ExchangeInfo struct {
	Mode DistributionMode `json:"mode"`
}

// DropSourceNode drops a source on a node.
type DropSourceNode struct {
	TableRefID domain.TableRefID `json:"table_ref_id"`
}

// DropTableNode drops a table on a node.
type DropTableNode struct {
	TableRefID domain.TableRefID `json:"table_ref_id"`
}

// PlanNode is the root of a fragment. Exactly one field is set.
type PlanNode struct {
	DropSource *DropSourceNode `json:"drop_source,omitempty"`
	DropTable  *DropTableNode  `json:"drop_table,omitempty"`
}

// Validate checks that exactly one node shape is set.
func (n PlanNode) Validate() error {
	switch {
	case n.DropSource != nil && n.DropTable != nil:
		return fmt.Errorf("plan node sets both drop_source and drop_table")
	case n.DropSource != nil:
		if n.DropSource.TableRefID.IsZero() {
			return fmt.Errorf("drop_source requires a table id")
		}
	case n.DropTable != nil:
		if n.DropTable.TableRefID.IsZero() {
			return fmt.Errorf("drop_table requires a table id")
		}
	default:
		return fmt.Errorf("plan node is empty")
	}
	return nil
}

// PlanFragment is a unit of distributed work. It is immutable once built.
type PlanFragment struct {
	Root         PlanNode     `json:"root"`
	ExchangeInfo ExchangeInfo `json:"exchange_info"`
}

// Validate checks the fragment before it is dispatched or executed.
func (f *PlanFragment) Validate() error {
	if f == nil {
		return fmt.Errorf("plan fragment is required")
	}
	if err := f.Root.Validate(); err != nil {
		return err
	}
	switch f.ExchangeInfo.Mode {
	case DistributionSingle, DistributionHash, DistributionBroadcast:
	default:
		return fmt.Errorf("unknown distribution mode %q", f.ExchangeInfo.Mode)
	}
	return nil
}

// BuildDropFragment returns the fragment that drops entity on a compute node.
// Sources get a DropSourceNode, everything else a DropTableNode.
func BuildDropFragment(entity *domain.TableEntity) *PlanFragment {
	f := &PlanFragment{ExchangeInfo: ExchangeInfo{Mode: DistributionSingle}}
	if entity.IsSource {
		f.Root.DropSource = &DropSourceNode{TableRefID: entity.Ref}
	} else {
		f.Root.DropTable = &DropTableNode{TableRefID: entity.Ref}
	}
	return f
}

// MarshalFragment encodes a fragment for the task wire.
func MarshalFragment(f *PlanFragment) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// UnmarshalFragment decodes and validates a fragment from the task wire.
func UnmarshalFragment(data []byte) (*PlanFragment, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("plan fragment is required")
	}
	var f PlanFragment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode plan fragment: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
