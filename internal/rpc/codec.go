// Package rpc holds the gRPC plumbing shared by the compute node and stream
// manager services: a JSON codec, client dialing, and token auth.
package rpc

import (
	"encoding/json"
	"sync"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype every internal service speaks.
const CodecName = "json"

var registerCodecOnce sync.Once

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// EnsureJSONCodec registers the JSON codec with gRPC. Safe to call repeatedly.
func EnsureJSONCodec() {
	registerCodecOnce.Do(func() {
		encoding.RegisterCodec(jsonCodec{})
	})
}
