package protobuf

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// ContentType is stamped on protobuf bodies.
const ContentType = "application/x-protobuf"

// Serializer encodes proto.Message values in the protobuf wire format and decodes them via
// the global protobuf type registry. Other values go to the fallback serializer, which lets
// the bus's own control messages travel alongside protobuf payloads.
type Serializer struct {
	fallback cbus.Serializer
	types    *protoregistry.Types
}

var _ cbus.Serializer = (*Serializer)(nil)

// New creates a Serializer. fallback may be nil, in which case non-proto messages fail.
func New(fallback cbus.Serializer) *Serializer {
	return &Serializer{fallback: fallback, types: protoregistry.GlobalTypes}
}

func (s *Serializer) Serialize(ctx context.Context, msg any, headers cbus.Headers) ([]byte, error) {
	m, ok := msg.(proto.Message)
	if !ok {
		if s.fallback == nil {
			return nil, fmt.Errorf("protobuf serialize %T: not a proto.Message: %w", msg, berr.ErrSerializationFailed)
		}

		return s.fallback.Serialize(ctx, msg, headers)
	}

	body, err := proto.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protobuf serialize %T: %w", msg, errors.Join(berr.ErrSerializationFailed, err))
	}

	headers[cbus.HeaderContentType] = ContentType
	headers[cbus.HeaderMessageType] = string(m.ProtoReflect().Descriptor().FullName())

	return body, nil
}

func (s *Serializer) Deserialize(ctx context.Context, headers cbus.Headers, body []byte) (any, error) {
	if headers.Get(cbus.HeaderContentType) != ContentType {
		if s.fallback == nil {
			return nil, fmt.Errorf("protobuf deserialize %q: %w", headers.Get(cbus.HeaderContentType), berr.ErrSerializationFailed)
		}

		return s.fallback.Deserialize(ctx, headers, body)
	}

	name, ok := headers.Lookup(cbus.HeaderMessageType)
	if !ok {
		return nil, fmt.Errorf("protobuf deserialize: %w: %s", berr.ErrMissingHeader, cbus.HeaderMessageType)
	}

	mt, err := s.types.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("protobuf deserialize %s: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	m := mt.New().Interface()
	if err := proto.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("protobuf deserialize %s: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	return m, nil
}
