// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"

	"streamddl/internal/domain"
)

// === Worker Node Repository Mock ===

// MockWorkerNodeRepo implements domain.WorkerNodeRepository for testing.
type MockWorkerNodeRepo struct {
	CreateFn       func(ctx context.Context, req domain.RegisterWorkerNodeRequest) (*domain.WorkerNode, error)
	GetByNameFn    func(ctx context.Context, name string) (*domain.WorkerNode, error)
	ListFn         func(ctx context.Context) ([]domain.WorkerNode, error)
	DeleteByNameFn func(ctx context.Context, name string) error
	ListCalls      int
}

// Create implements the interface method for testing.
func (m *MockWorkerNodeRepo) Create(ctx context.Context, req domain.RegisterWorkerNodeRequest) (*domain.WorkerNode, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, req)
	}
	panic("unexpected call to MockWorkerNodeRepo.Create")
}

// GetByName implements the interface method for testing.
func (m *MockWorkerNodeRepo) GetByName(ctx context.Context, name string) (*domain.WorkerNode, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, name)
	}
	panic("unexpected call to MockWorkerNodeRepo.GetByName")
}

// List implements the interface method for testing.
func (m *MockWorkerNodeRepo) List(ctx context.Context) ([]domain.WorkerNode, error) {
	m.ListCalls++
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	panic("unexpected call to MockWorkerNodeRepo.List")
}

// DeleteByName implements the interface method for testing.
func (m *MockWorkerNodeRepo) DeleteByName(ctx context.Context, name string) error {
	if m.DeleteByNameFn != nil {
		return m.DeleteByNameFn(ctx, name)
	}
	panic("unexpected call to MockWorkerNodeRepo.DeleteByName")
}

// Compile-time interface check.
var _ domain.WorkerNodeRepository = (*MockWorkerNodeRepo)(nil)
