package stream

import (
	"context"
	"sync"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
)

// LocalManager keeps dataflows in process. It can deploy but not tear down.
type LocalManager struct {
	mu        sync.RWMutex
	dataflows map[domain.TableRefID]*plan.StreamingPlan
}

// NewLocalManager creates an empty LocalManager.
func NewLocalManager() *LocalManager {
	return &LocalManager{dataflows: make(map[domain.TableRefID]*plan.StreamingPlan)}
}

func (m *LocalManager) Mode() Mode { return ModeLocal }

func (m *LocalManager) Teardown() (DAGTeardown, bool) { return nil, false }

func (m *LocalManager) CreateMaterializedView(_ context.Context, node *plan.StreamNode, ref domain.TableRefID) error {
	p, err := node.Decode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.dataflows[ref]; exists {
		return domain.ErrDuplicateEntity("dataflow for table %s already exists", ref)
	}
	m.dataflows[ref] = p
	return nil
}

// Dataflow returns the plan deployed for ref.
func (m *LocalManager) Dataflow(ref domain.TableRefID) (*plan.StreamingPlan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.dataflows[ref]
	return p, ok
}

// Len returns the number of deployed dataflows.
func (m *LocalManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dataflows)
}
