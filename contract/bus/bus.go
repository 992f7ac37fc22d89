package bus

import "context"

// Bus is the tech-agnostic surface of the message bus.
// This interface is intended for consumers that want to depend only on contracts.
type Bus interface {
	// Point-to-point
	SendLocal(ctx context.Context, msg any, headers Headers) error
	Send(ctx context.Context, msg any, headers Headers) error
	Reply(ctx context.Context, msg any, headers Headers) error

	// Publish/subscribe
	Publish(ctx context.Context, topic string, msg any, headers Headers) error
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error

	// Inbound scoping
	Handle(ctx context.Context, env *Envelope, handler MessageHandler) error

	// Lifecycle
	Close() error
}
