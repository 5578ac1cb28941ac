package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
	"streamddl/internal/rpc"
	streamproto "streamddl/internal/stream/proto"
)

// RemoteManager is a client of a remote stream manager service. It supports
// teardown.
type RemoteManager struct {
	conn      *grpc.ClientConn
	client    streamproto.StreamManagerClient
	authToken string
}

// NewRemoteManager connects to the stream manager at endpointURL
// (grpc:// or grpcs://).
func NewRemoteManager(endpointURL, authToken string) (*RemoteManager, error) {
	conn, err := rpc.Dial(endpointURL)
	if err != nil {
		return nil, err
	}
	return &RemoteManager{conn: conn, client: streamproto.NewStreamManagerClient(conn), authToken: authToken}, nil
}

func (m *RemoteManager) Mode() Mode { return ModeRemote }

func (m *RemoteManager) Teardown() (DAGTeardown, bool) { return m, true }

func (m *RemoteManager) CreateMaterializedView(ctx context.Context, node *plan.StreamNode, ref domain.TableRefID) error {
	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode stream node: %w", err)
	}
	ctx, cancel := rpc.CallContext(ctx, m.authToken, "")
	defer cancel()
	_, err = m.client.CreateMaterializedView(ctx, &streamproto.CreateMaterializedViewRequest{
		TableRefId: RefToProto(ref),
		StreamNode: payload,
	})
	return err
}

func (m *RemoteManager) DropMaterializedView(ctx context.Context, ref domain.TableRefID) error {
	ctx, cancel := rpc.CallContext(ctx, m.authToken, "")
	defer cancel()
	_, err := m.client.DropMaterializedView(ctx, &streamproto.DropMaterializedViewRequest{TableRefId: RefToProto(ref)})
	return err
}

// ListDataflows returns the dataflows the remote manager is running.
func (m *RemoteManager) ListDataflows(ctx context.Context) ([]*streamproto.Dataflow, error) {
	ctx, cancel := rpc.CallContext(ctx, m.authToken, "")
	defer cancel()
	out, err := m.client.ListDataflows(ctx, &streamproto.ListDataflowsRequest{})
	if err != nil {
		return nil, err
	}
	return out.Dataflows, nil
}

// Close closes the client connection.
func (m *RemoteManager) Close() error {
	return m.conn.Close()
}

// RefToProto converts a table id for the stream manager wire.
func RefToProto(ref domain.TableRefID) *streamproto.TableRefId {
	return &streamproto.TableRefId{DatabaseId: ref.DatabaseID, SchemaId: ref.SchemaID, TableId: ref.TableID}
}

// RefFromProto converts a wire table id. A missing id is the zero id.
func RefFromProto(ref *streamproto.TableRefId) domain.TableRefID {
	if ref == nil {
		return domain.TableRefID{}
	}
	return domain.TableRefID{DatabaseID: ref.DatabaseId, SchemaID: ref.SchemaId, TableID: ref.TableId}
}
