package compute

import (
	"sync"

	"streamddl/internal/domain"
)

// ClientProvider hands out the client for a compute node.
type ClientProvider interface {
	GetOrCreate(node *domain.WorkerNode) (NodeClient, error)
}

// DialFunc opens a client for a node endpoint.
type DialFunc func(endpointURL, authToken string) (NodeClient, error)

type cachedClient struct {
	endpoint string
	client   NodeClient
}

// ClientManager caches node clients keyed by node id. A node re-registered
// under a new endpoint gets a fresh client.
type ClientManager struct {
	mu        sync.RWMutex
	entries   map[int64]cachedClient
	authToken string
	dial      DialFunc
}

// NewClientManager creates a ClientManager that dials nodes over gRPC with
// authToken.
func NewClientManager(authToken string) *ClientManager {
	return NewClientManagerWithDialer(authToken, NewGRPCNodeClient)
}

// NewClientManagerWithDialer creates a ClientManager that opens clients with dial.
func NewClientManagerWithDialer(authToken string, dial DialFunc) *ClientManager {
	return &ClientManager{
		entries:   make(map[int64]cachedClient),
		authToken: authToken,
		dial:      dial,
	}
}

// GetOrCreate returns the cached client for node or dials a new one.
// Uses double-checked locking to keep the hot path on the read lock.
func (m *ClientManager) GetOrCreate(node *domain.WorkerNode) (NodeClient, error) {
	m.mu.RLock()
	if e, ok := m.entries[node.ID]; ok && e.endpoint == node.Endpoint {
		m.mu.RUnlock()
		return e.client, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[node.ID]
	if ok && e.endpoint == node.Endpoint {
		return e.client, nil
	}
	if ok {
		_ = e.client.Close()
	}

	client, err := m.dial(node.Endpoint, m.authToken)
	if err != nil {
		return nil, err
	}
	m.entries[node.ID] = cachedClient{endpoint: node.Endpoint, client: client}
	return client, nil
}

// Close closes every cached client.
func (m *ClientManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, e := range m.entries {
		if err := e.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.entries, id)
	}
	return firstErr
}
