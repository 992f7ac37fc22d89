package bus

import "context"

// Router resolves destination addresses. Lookups consult a table fixed at startup.
type Router interface {
	// GetDestinationAddress returns the address a point-to-point message should be sent to.
	GetDestinationAddress(ctx context.Context, msg any) (string, error)

	// GetOwnerAddress returns the endpoint that owns the subscriber list of topic.
	// Only used when the subscription storage is decentralized.
	GetOwnerAddress(ctx context.Context, topic string) (string, error)
}
