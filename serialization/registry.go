package serialization

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

var (
	// ErrNilType indicates that Register received a nil value.
	ErrNilType = errors.New("serialization: type is nil")
	// ErrNameConflict indicates that two different types share one message name.
	ErrNameConflict = errors.New("serialization: message name already registered")
)

// Named lets a message choose the name written to the MessageType header.
type Named interface {
	MessageName() string
}

// TypeRegistry maps MessageType names to Go types for decoding.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry creates a registry that already knows the subscription control messages.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]reflect.Type)}
	_ = r.Register(cbus.SubscribeRequest{}, cbus.UnsubscribeRequest{})

	return r
}

// Register records the type of every sample under NameOf(sample).
func (r *TypeRegistry) Register(samples ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		if s == nil {
			return ErrNilType
		}

		name, t := NameOf(s), valueType(s)
		if prev, ok := r.types[name]; ok && prev != t {
			return fmt.Errorf("%w: %s is %s, not %s", ErrNameConflict, name, prev.PkgPath(), t.PkgPath())
		}

		r.types[name] = t
	}

	return nil
}

// Resolve returns the value type registered under name.
func (r *TypeRegistry) Resolve(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]

	return t, ok
}

// NameOf returns MessageName() when implemented, otherwise the package-qualified type
// name with pointers dereferenced (e.g. "bus.SubscribeRequest"). The package name is not
// the import path: types whose short names collide must implement Named.
func NameOf(v any) string {
	if n, ok := v.(Named); ok {
		return n.MessageName()
	}

	return valueType(v).String()
}

func valueType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t
}
