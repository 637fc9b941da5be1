package network

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawCodec moves already-encoded protobuf bytes through gRPC untouched.
// It registers under the "proto" name so the content-type matches what
// nodes expect.
type rawCodec struct{}

var _ encoding.Codec = rawCodec{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *[]byte:
		return *m, nil
	case []byte:
		return m, nil
	default:
		return nil, fmt.Errorf("network: raw codec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("network: raw codec cannot unmarshal into %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

// Codec exposes the raw codec for servers speaking the same methods.
func Codec() encoding.Codec { return rawCodec{} }
