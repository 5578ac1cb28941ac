// Package stream hands streaming plans to the stream manager that deploys
// and tears down materialized view dataflows.
package stream

import (
	"context"
	"fmt"
	"strings"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
)

// Mode selects the stream manager implementation.
type Mode string

// Stream manager modes.
const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLocal, ModeRemote:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream manager mode %q (want local or remote)", s)
	}
}

// Manager deploys streaming dataflows.
type Manager interface {
	Mode() Mode
	// CreateMaterializedView deploys the dataflow in node for view ref.
	CreateMaterializedView(ctx context.Context, node *plan.StreamNode, ref domain.TableRefID) error
	// Teardown returns the manager's teardown capability. Managers that
	// cannot remove running dataflows return false.
	Teardown() (DAGTeardown, bool)
}

// DAGTeardown removes deployed dataflows. Removing an unknown dataflow is
// not an error.
type DAGTeardown interface {
	DropMaterializedView(ctx context.Context, ref domain.TableRefID) error
}
