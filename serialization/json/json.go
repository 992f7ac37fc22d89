package json

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/segmentio/encoding/json"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/serialization"
)

// ContentType is stamped on every body produced by Serializer.
const ContentType = "application/json;charset=utf-8"

// Serializer encodes messages as JSON. Serialized types are registered on the fly so the
// same instance can decode what it produced; receivers register their types up front.
type Serializer struct {
	registry *serialization.TypeRegistry
}

var _ cbus.Serializer = (*Serializer)(nil)

// New creates a Serializer over registry; nil uses serialization.NewTypeRegistry().
func New(registry *serialization.TypeRegistry) *Serializer {
	if registry == nil {
		registry = serialization.NewTypeRegistry()
	}

	return &Serializer{registry: registry}
}

// Registry exposes the type registry for up-front registration.
func (s *Serializer) Registry() *serialization.TypeRegistry { return s.registry }

func (s *Serializer) Serialize(_ context.Context, msg any, headers cbus.Headers) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("json serialize <nil>: %w", berr.ErrSerializationFailed)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("json serialize %T: %w", msg, errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := s.registry.Register(msg); err != nil {
		return nil, fmt.Errorf("json serialize %T: %w", msg, errors.Join(berr.ErrSerializationFailed, err))
	}

	headers[cbus.HeaderContentType] = ContentType
	headers[cbus.HeaderMessageType] = serialization.NameOf(msg)

	return body, nil
}

func (s *Serializer) Deserialize(_ context.Context, headers cbus.Headers, body []byte) (any, error) {
	name, ok := headers.Lookup(cbus.HeaderMessageType)
	if !ok {
		return nil, fmt.Errorf("json deserialize: %w: %s", berr.ErrMissingHeader, cbus.HeaderMessageType)
	}

	t, ok := s.registry.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("json deserialize %s: unknown type: %w", name, berr.ErrSerializationFailed)
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(body, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("json deserialize %s: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	return ptr.Elem().Interface(), nil
}
