package bus

import "context"

// Transport hands envelopes to a destination address (queue, subject, topic...).
// Implementations must be safe for concurrent use: the pipeline may call SendTo for several
// addresses of one logical operation in parallel.
type Transport interface {
	SendTo(ctx context.Context, address string, env *Envelope) error
}

// TopicPublisher is an optional Transport capability for brokers that deliver to topic
// subscribers natively. When SupportsNativeTopicPublish reports true for a topic, Publish
// skips subscriber resolution and calls PublishNative instead.
type TopicPublisher interface {
	SupportsNativeTopicPublish(topic string) bool
	PublishNative(ctx context.Context, topic string, env *Envelope) error
}

// Adapter is a convenience interface for transports that offer both capabilities.
//
// This keeps the Bus decoupled from concrete transports while enabling simple injection
// of user-provided adapters (Kafka, NATS, RabbitMQ, Watermill, in-memory, etc.).
type Adapter interface {
	Transport
	TopicPublisher
}
