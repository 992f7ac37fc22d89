package servicebus

import (
	"context"
	"fmt"
	"log/slog"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// Handle deserializes an inbound envelope and runs handler with the envelope's headers as the
// current header context, so Reply and correlation work inside it. Subscription control
// messages are applied to the local storage and never reach handler.
func (b *Bus) Handle(ctx context.Context, env *cbus.Envelope, handler cbus.MessageHandler) error {
	if env == nil {
		return fmt.Errorf("handle: nil envelope: %w", berr.ErrInvalidOperation)
	}

	if b.closed.Load() {
		return fmt.Errorf("handle: %w", berr.ErrClosed)
	}

	ctx = b.extractor.Extract(ctx, env.Headers)
	ctx = WithIncomingHeaders(ctx, env.Headers)

	msg, err := b.serializer.Deserialize(ctx, env.Headers, env.Body)
	if err != nil {
		return fmt.Errorf("handle %s: %w", env.Headers.Get(cbus.HeaderMessageID), err)
	}

	handled, err := b.HandleControl(ctx, msg)
	if handled || err != nil {
		return err
	}

	if handler == nil {
		return nil
	}

	return handler(ctx, msg)
}

// HandleControl applies SubscribeRequest and UnsubscribeRequest to the local storage.
// It reports whether msg was a control message.
func (b *Bus) HandleControl(ctx context.Context, msg any) (bool, error) {
	switch m := msg.(type) {
	case cbus.SubscribeRequest:
		return true, b.applyControl(ctx, "subscribe request", m.Topic, m.SubscriberAddress, b.storage.RegisterSubscriber)
	case *cbus.SubscribeRequest:
		return true, b.applyControl(ctx, "subscribe request", m.Topic, m.SubscriberAddress, b.storage.RegisterSubscriber)
	case cbus.UnsubscribeRequest:
		return true, b.applyControl(ctx, "unsubscribe request", m.Topic, m.SubscriberAddress, b.storage.UnregisterSubscriber)
	case *cbus.UnsubscribeRequest:
		return true, b.applyControl(ctx, "unsubscribe request", m.Topic, m.SubscriberAddress, b.storage.UnregisterSubscriber)
	default:
		return false, nil
	}
}

func (b *Bus) applyControl(
	ctx context.Context,
	op, topic, address string,
	apply func(ctx context.Context, topic, address string) error,
) error {
	if topic == "" || address == "" {
		return fmt.Errorf("%s: empty topic or address: %w", op, berr.ErrInvalidOperation)
	}

	if err := apply(ctx, topic, address); err != nil {
		return fmt.Errorf("%s %q: %w", op, topic, err)
	}

	b.logger.InfoContext(ctx, op+" applied",
		slog.String("topic", topic),
		slog.String("subscriber", address),
	)

	return nil
}
