package bus

import "context"

// SubscriptionStorage stores (topic, subscriber address) records.
//
// Register and Unregister are idempotent. Implementations must make writes to one topic
// mutually exclusive and must return a consistent snapshot from GetSubscriberAddresses.
type SubscriptionStorage interface {
	// IsCentralized reports whether every endpoint shares this storage. It never changes
	// during the lifetime of the instance.
	IsCentralized() bool

	// GetSubscriberAddresses returns the sorted, de-duplicated subscribers of topic.
	// An empty result is not an error.
	GetSubscriberAddresses(ctx context.Context, topic string) ([]string, error)

	RegisterSubscriber(ctx context.Context, topic, address string) error
	UnregisterSubscriber(ctx context.Context, topic, address string) error
}
