package rpc

import (
	"context"
	"crypto/subtle"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Authorize checks the x-agent-token metadata against token. An empty token
// disables the check.
func Authorize(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	got := MetadataValue(ctx, TokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
		return nil
	}
	return status.Error(codes.Unauthenticated, "unauthorized")
}

// MetadataValue returns the first incoming metadata value for key.
func MetadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// TokenInterceptor rejects unary calls that do not carry token.
func TokenInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := Authorize(ctx, token); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// NewServer returns a gRPC server speaking the JSON codec, guarded by token.
func NewServer(token string, opts ...grpc.ServerOption) *grpc.Server {
	EnsureJSONCodec()
	opts = append(opts, grpc.UnaryInterceptor(TokenInterceptor(token)))
	return grpc.NewServer(opts...)
}
