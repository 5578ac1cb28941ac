package compute

import (
	"context"

	"google.golang.org/grpc"

	computeproto "streamddl/internal/compute/proto"
	"streamddl/internal/rpc"
)

// NodeClient is the cluster RPC surface of one compute node.
type NodeClient interface {
	CreateTask(ctx context.Context, req CreateTaskRequest) (CreateTaskResponse, error)
	GetData(ctx context.Context, req GetDataRequest) (GetDataResponse, error)
	Health(ctx context.Context) (HealthResponse, error)
	Close() error
}

type grpcNodeClient struct {
	endpoint  string
	conn      *grpc.ClientConn
	client    computeproto.TaskServiceClient
	authToken string
}

// NewGRPCNodeClient connects to the task service at endpointURL
// (grpc:// or grpcs://). The connection is established lazily.
func NewGRPCNodeClient(endpointURL, authToken string) (NodeClient, error) {
	conn, err := rpc.Dial(endpointURL)
	if err != nil {
		return nil, err
	}
	return &grpcNodeClient{
		endpoint:  endpointURL,
		conn:      conn,
		client:    computeproto.NewTaskServiceClient(conn),
		authToken: authToken,
	}, nil
}

func (c *grpcNodeClient) CreateTask(ctx context.Context, req CreateTaskRequest) (CreateTaskResponse, error) {
	in, err := createTaskRequestToProto(req)
	if err != nil {
		return CreateTaskResponse{}, err
	}
	ctx, cancel := rpc.CallContext(ctx, c.authToken, req.RequestID)
	defer cancel()
	out, err := c.client.CreateTask(ctx, in)
	if err != nil {
		return CreateTaskResponse{}, err
	}
	return createTaskResponseFromProto(out), nil
}

func (c *grpcNodeClient) GetData(ctx context.Context, req GetDataRequest) (GetDataResponse, error) {
	ctx, cancel := rpc.CallContext(ctx, c.authToken, "")
	defer cancel()
	out, err := c.client.GetData(ctx, &computeproto.GetDataRequest{
		SinkId: &computeproto.TaskSinkId{TaskId: req.SinkID.TaskID, SinkId: req.SinkID.SinkID},
	})
	if err != nil {
		return GetDataResponse{}, err
	}
	return getDataResponseFromProto(out), nil
}

func (c *grpcNodeClient) Health(ctx context.Context) (HealthResponse, error) {
	ctx, cancel := rpc.CallContext(ctx, c.authToken, "")
	defer cancel()
	out, err := c.client.Health(ctx, &computeproto.HealthRequest{})
	if err != nil {
		return HealthResponse{}, err
	}
	return healthResponseFromProto(out), nil
}

func (c *grpcNodeClient) Close() error {
	return c.conn.Close()
}
