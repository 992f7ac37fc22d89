package router

import (
	"context"
	"fmt"
	"reflect"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// Keyed lets a message choose its routing key instead of its type name.
type Keyed interface {
	RoutingKey() string
}

// Router is an immutable type- and name-based routing table.
type Router struct {
	types        map[reflect.Type]string
	names        map[string]string
	owners       map[string]string
	defaultOwner string
}

var _ cbus.Router = (*Router)(nil)

// GetDestinationAddress resolves msg by Go type, then by routing key (RoutingKey() or type name).
func (r *Router) GetDestinationAddress(ctx context.Context, msg any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if msg == nil {
		return "", fmt.Errorf("route <nil>: %w", berr.ErrRouting)
	}

	if addr, ok := r.types[normalize(reflect.TypeOf(msg))]; ok {
		return addr, nil
	}

	key := KeyOf(msg)
	if addr, ok := r.names[key]; ok {
		return addr, nil
	}

	return "", fmt.Errorf("route %s: %w", key, berr.ErrRouting)
}

// GetOwnerAddress resolves the owner of topic from the owner table, then from the name
// routes (a topic named after a message type is owned by that type's destination),
// then the default owner.
func (r *Router) GetOwnerAddress(ctx context.Context, topic string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if addr, ok := r.owners[topic]; ok {
		return addr, nil
	}

	if addr, ok := r.names[topic]; ok {
		return addr, nil
	}

	if r.defaultOwner != "" {
		return r.defaultOwner, nil
	}

	return "", fmt.Errorf("owner of topic %q: %w", topic, berr.ErrRouting)
}

// KeyOf returns the routing key for msg: RoutingKey() when implemented, otherwise the
// unqualified type name with pointers dereferenced.
func KeyOf(msg any) string {
	if k, ok := msg.(Keyed); ok {
		return k.RoutingKey()
	}

	return typeName(msg)
}

func typeName(v any) string {
	t := normalize(reflect.TypeOf(v))
	if t == nil {
		return "<nil>"
	}

	name := t.Name()
	if name == "" { // unnamed (e.g., map/struct literal)
		name = t.String()
	}

	return name
}

func normalize(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t
}
