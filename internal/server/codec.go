package server

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec carries plain Go structs as JSON. It replaces connect's built-in
// "json" codec, which only accepts protobuf messages.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSON configures a handler or client for the JSON codec.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
