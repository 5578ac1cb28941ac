package domain

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// WorkerNode is a compute node that receives broadcast plan fragments.
type WorkerNode struct {
	ID        int64
	Name      string // unique, e.g. "compute-1"
	Endpoint  string // e.g. "grpc://10.0.0.5:9443"
	CreatedAt time.Time
}

// RegisterWorkerNodeRequest holds parameters for adding a node to the cluster.
type RegisterWorkerNodeRequest struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

// Validate checks the register request.
func (r RegisterWorkerNodeRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrValidation("node name is required")
	}
	if r.Endpoint == "" {
		return ErrValidation("node endpoint is required")
	}
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return ErrValidation("invalid node endpoint %q: %v", r.Endpoint, err)
	}
	switch u.Scheme {
	case "grpc", "grpcs":
	default:
		return ErrValidation("node endpoint must use grpc:// or grpcs://, got %q", r.Endpoint)
	}
	if u.Host == "" {
		return ErrValidation("node endpoint host is required")
	}
	return nil
}

// WorkerNodeRepository persists cluster membership.
type WorkerNodeRepository interface {
	Create(ctx context.Context, req RegisterWorkerNodeRequest) (*WorkerNode, error)
	GetByName(ctx context.Context, name string) (*WorkerNode, error)
	List(ctx context.Context) ([]WorkerNode, error)
	DeleteByName(ctx context.Context, name string) error
}
