// Package streammeta is the stream manager service. It tracks deployed
// materialized view dataflows by table id and places their operators on
// compute nodes.
package streammeta

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"streamddl/internal/domain"
	"streamddl/internal/plan"
	"streamddl/internal/stream"
	streamproto "streamddl/internal/stream/proto"
)

// unplacedNode hosts actors when no compute nodes are configured.
const unplacedNode = "local"

// Actor is one deployed operator instance.
type Actor struct {
	ID       int32
	Operator plan.StreamOperator
	Node     string
}

// Dataflow is a deployed materialized view.
type Dataflow struct {
	ID        string
	Ref       domain.TableRefID
	Actors    []Actor
	CreatedAt time.Time
}

// Config holds the parameters for a stream manager server.
type Config struct {
	// Nodes are the compute node names actors are placed on, round-robin.
	Nodes  []string
	Logger *slog.Logger
}

// Server serves streamddl.stream.v1.StreamManager.
type Server struct {
	streamproto.UnimplementedStreamManagerServer

	nodes  []string
	logger *slog.Logger

	mu        sync.Mutex
	next      int
	dataflows map[domain.TableRefID]*Dataflow
}

// NewServer creates an empty stream manager.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		nodes:     append([]string(nil), cfg.Nodes...),
		logger:    logger,
		dataflows: make(map[domain.TableRefID]*Dataflow),
	}
}

// Register registers srv on registrar.
func Register(registrar grpc.ServiceRegistrar, srv *Server) {
	streamproto.RegisterStreamManagerServer(registrar, srv)
}

func (s *Server) CreateMaterializedView(_ context.Context, req *streamproto.CreateMaterializedViewRequest) (*streamproto.CreateMaterializedViewResponse, error) {
	if req == nil || len(req.StreamNode) == 0 {
		return nil, status.Error(codes.InvalidArgument, "stream_node is required")
	}
	ref := stream.RefFromProto(req.TableRefId)
	if ref.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "table_ref_id is required")
	}

	var node plan.StreamNode
	if err := json.Unmarshal(req.StreamNode, &node); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode stream node: %v", err)
	}
	if node.TableRefID != ref {
		return nil, status.Errorf(codes.InvalidArgument, "stream node is tagged %s, request is for %s", node.TableRefID, ref)
	}
	p, err := node.Decode()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dataflows[ref]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "dataflow for table %s already exists", ref)
	}

	df := &Dataflow{ID: uuid.NewString(), Ref: ref, CreatedAt: time.Now().UTC()}
	p.Walk(func(n *plan.StreamPlanNode) {
		df.Actors = append(df.Actors, Actor{
			ID:       int32(len(df.Actors) + 1),
			Operator: n.Operator,
			Node:     s.placeLocked(),
		})
	})
	s.dataflows[ref] = df

	s.logger.Info("dataflow deployed", "table_id", ref.String(), "dataflow_id", df.ID, "actors", len(df.Actors))
	return &streamproto.CreateMaterializedViewResponse{Dataflow: dataflowToProto(df)}, nil
}

func (s *Server) DropMaterializedView(_ context.Context, req *streamproto.DropMaterializedViewRequest) (*streamproto.DropMaterializedViewResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "table_ref_id is required")
	}
	ref := stream.RefFromProto(req.TableRefId)
	if ref.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "table_ref_id is required")
	}

	s.mu.Lock()
	_, existed := s.dataflows[ref]
	delete(s.dataflows, ref)
	s.mu.Unlock()

	if existed {
		s.logger.Info("dataflow removed", "table_id", ref.String())
	}
	return &streamproto.DropMaterializedViewResponse{Dropped: existed}, nil
}

func (s *Server) ListDataflows(context.Context, *streamproto.ListDataflowsRequest) (*streamproto.ListDataflowsResponse, error) {
	return &streamproto.ListDataflowsResponse{Dataflows: s.snapshot()}, nil
}

// Dataflow returns the dataflow deployed for ref.
func (s *Server) Dataflow(ref domain.TableRefID) (Dataflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	df, ok := s.dataflows[ref]
	if !ok {
		return Dataflow{}, false
	}
	out := *df
	out.Actors = append([]Actor(nil), df.Actors...)
	return out, true
}

func (s *Server) snapshot() []*streamproto.Dataflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*streamproto.Dataflow, 0, len(s.dataflows))
	for _, df := range s.dataflows {
		out = append(out, dataflowToProto(df))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TableRefId.TableId < out[j].TableRefId.TableId
	})
	return out
}

// placeLocked returns the next node in round-robin order. s.mu must be held.
func (s *Server) placeLocked() string {
	if len(s.nodes) == 0 {
		return unplacedNode
	}
	node := s.nodes[s.next%len(s.nodes)]
	s.next++
	return node
}

func dataflowToProto(df *Dataflow) *streamproto.Dataflow {
	actors := make([]*streamproto.ActorPlacement, len(df.Actors))
	for i, a := range df.Actors {
		actors[i] = &streamproto.ActorPlacement{ActorId: a.ID, Operator: string(a.Operator), Node: a.Node}
	}
	return &streamproto.Dataflow{
		DataflowId:       df.ID,
		TableRefId:       stream.RefToProto(df.Ref),
		Actors:           actors,
		CreatedAtRfc3339: df.CreatedAt.Format(time.RFC3339),
	}
}
