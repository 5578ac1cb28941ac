package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"streamddl/internal/domain"
)

// WorkerNodeRepo implements domain.WorkerNodeRepository using the metastore.
type WorkerNodeRepo struct {
	db *sql.DB
}

// NewWorkerNodeRepo creates a new WorkerNodeRepo.
func NewWorkerNodeRepo(db *sql.DB) *WorkerNodeRepo {
	return &WorkerNodeRepo{db: db}
}

// Compile-time interface check.
var _ domain.WorkerNodeRepository = (*WorkerNodeRepo)(nil)

// Create registers a worker node.
func (r *WorkerNodeRepo) Create(ctx context.Context, req domain.RegisterWorkerNodeRequest) (*domain.WorkerNode, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO worker_nodes (name, endpoint) VALUES (?, ?)`, req.Name, req.Endpoint)
	if err != nil {
		err = mapDBError(err)
		if isConflict(err) {
			return nil, domain.ErrConflict("worker node %q already exists", req.Name)
		}
		return nil, err
	}
	return r.GetByName(ctx, req.Name)
}

// GetByName returns a worker node by name.
func (r *WorkerNodeRepo) GetByName(ctx context.Context, name string) (*domain.WorkerNode, error) {
	n, err := scanWorkerNode(r.db.QueryRowContext(ctx,
		`SELECT id, name, endpoint, created_at FROM worker_nodes WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("worker node %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// List returns every registered worker node ordered by id.
func (r *WorkerNodeRepo) List(ctx context.Context) ([]domain.WorkerNode, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, endpoint, created_at FROM worker_nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.WorkerNode
	for rows.Next() {
		n, err := scanWorkerNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// DeleteByName removes a worker node.
func (r *WorkerNodeRepo) DeleteByName(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM worker_nodes WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("worker node %q not found", name)
	}
	return nil
}

func scanWorkerNode(row rowScanner) (*domain.WorkerNode, error) {
	var n domain.WorkerNode
	var createdAt string
	if err := row.Scan(&n.ID, &n.Name, &n.Endpoint, &createdAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		n.CreatedAt = t
	}
	return &n, nil
}
