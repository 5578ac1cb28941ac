package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Metadata keys.
const (
	TokenHeader     = "x-agent-token"
	RequestIDHeader = "x-request-id"
)

// DefaultTimeout bounds a call whose context carries no deadline.
const DefaultTimeout = 30 * time.Second

// Dial opens a client connection to a grpc:// or grpcs:// endpoint.
func Dial(endpointURL string) (*grpc.ClientConn, error) {
	EnsureJSONCodec()

	target, secure, err := DialTarget(endpointURL)
	if err != nil {
		return nil, err
	}
	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpointURL, err)
	}
	return conn, nil
}

// DialTarget converts an endpoint URL to a gRPC target.
func DialTarget(endpointURL string) (target string, secure bool, err error) {
	u, parseErr := url.Parse(endpointURL)
	if parseErr != nil {
		return "", false, fmt.Errorf("parse endpoint url: %w", parseErr)
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	switch scheme {
	case "grpc", "grpcs":
		if u.Host == "" {
			return "", false, fmt.Errorf("grpc endpoint host is required")
		}
		return u.Host, scheme == "grpcs", nil
	default:
		return "", false, fmt.Errorf("grpc transport requires grpc:// or grpcs:// endpoint")
	}
}

// CallContext applies the default timeout when ctx has no deadline and
// attaches the auth token and a request id.
func CallContext(ctx context.Context, token, requestID string) (context.Context, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	pairs := []string{RequestIDHeader, requestID}
	if token != "" {
		pairs = append(pairs, TokenHeader, token)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...), cancel
}

// IsUnavailable reports whether err means the peer could not serve the call.
func IsUnavailable(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case codes.Unimplemented, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
