package router

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
)

var (
	// ErrEmptyAddress is returned when a route or owner maps to a blank address.
	ErrEmptyAddress = errors.New("router: address is empty")
	// ErrEmptyKey is returned when a route name or topic is blank.
	ErrEmptyKey = errors.New("router: key is empty")
	// ErrConflict is returned when the same key is mapped to two different addresses.
	ErrConflict = errors.New("router: conflicting route")
)

// Builder collects routes. It is not safe for concurrent use; call Build once when done.
type Builder struct {
	types        map[reflect.Type]string
	names        map[string]string
	owners       map[string]string
	defaultOwner string
	errs         []error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		types:  make(map[reflect.Type]string),
		names:  make(map[string]string),
		owners: make(map[string]string),
	}
}

// Map routes messages of type T to address.
func Map[T any](b *Builder, address string) *Builder {
	t := normalize(reflect.TypeFor[T]())
	if err := checkAddress(t.String(), address); err != nil {
		b.errs = append(b.errs, err)
		return b
	}

	if prev, ok := b.types[t]; ok && prev != address {
		b.errs = append(b.errs, fmt.Errorf("%w: %s -> %s and %s", ErrConflict, t, prev, address))
		return b
	}

	b.types[t] = address

	return b
}

// Route maps a routing key (type name or RoutingKey()) to address.
func (b *Builder) Route(name, address string) *Builder {
	b.put(b.names, "route", name, address)
	return b
}

// Routes maps every name in routes; typically fed from configuration.
func (b *Builder) Routes(routes map[string]string) *Builder {
	for name, addr := range routes {
		b.Route(name, addr)
	}

	return b
}

// Owner declares address as the owner of topic.
func (b *Builder) Owner(topic, address string) *Builder {
	b.put(b.owners, "owner", topic, address)
	return b
}

// Owners declares every topic owner in owners.
func (b *Builder) Owners(owners map[string]string) *Builder {
	for topic, addr := range owners {
		b.Owner(topic, addr)
	}

	return b
}

// DefaultOwner is used for topics with no explicit owner or name route.
func (b *Builder) DefaultOwner(address string) *Builder {
	b.defaultOwner = strings.TrimSpace(address)
	return b
}

// Build validates the collected routes and freezes them into a Router.
func (b *Builder) Build() (*Router, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}

	return &Router{
		types:        maps.Clone(b.types),
		names:        maps.Clone(b.names),
		owners:       maps.Clone(b.owners),
		defaultOwner: b.defaultOwner,
	}, nil
}

func (b *Builder) put(dst map[string]string, kind, key, address string) {
	key = strings.TrimSpace(key)
	if key == "" {
		b.errs = append(b.errs, fmt.Errorf("%s: %w", kind, ErrEmptyKey))
		return
	}

	if err := checkAddress(key, address); err != nil {
		b.errs = append(b.errs, err)
		return
	}

	if prev, ok := dst[key]; ok && prev != address {
		b.errs = append(b.errs, fmt.Errorf("%w: %s %s -> %s and %s", ErrConflict, kind, key, prev, address))
		return
	}

	dst[key] = address
}

func checkAddress(key, address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%s: %w", key, ErrEmptyAddress)
	}

	return nil
}
