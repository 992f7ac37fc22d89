package servicebus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/serialization/json"
)

// Endpoint is what a Bus needs from its host: its own input queue address, a transport,
// an optional router and the subscription storage.
type Endpoint struct {
	InputAddress  string
	Transport     cbus.Transport
	Router        cbus.Router
	Subscriptions cbus.SubscriptionStorage
}

// Bus is the dispatch facade. It resolves destinations, stamps headers, serializes once and
// hands one envelope per destination to the transport.
//
// Bus is concurrency-safe and contains no global state.
type Bus struct {
	address    string
	transport  cbus.Transport
	router     cbus.Router
	storage    cbus.SubscriptionStorage
	serializer cbus.Serializer
	propagator cbus.HeaderPropagator
	extractor  cbus.HeaderExtractor
	logger     *slog.Logger

	// outgoing steps executed in registration order
	steps []OutgoingStep

	parallelism int
	distinctIDs bool
	newID       func() string
	now         func() time.Time

	closed atomic.Bool
}

var _ cbus.Bus = (*Bus)(nil)

// New constructs a Bus for the given endpoint.
func New(endpoint Endpoint, opts ...BusOption) (*Bus, error) {
	switch {
	case endpoint.InputAddress == "":
		return nil, fmt.Errorf("new bus: input address: %w", berr.ErrNotConfigured)
	case endpoint.Transport == nil:
		return nil, fmt.Errorf("new bus: transport: %w", berr.ErrNotConfigured)
	case endpoint.Subscriptions == nil:
		return nil, fmt.Errorf("new bus: subscription storage: %w", berr.ErrNotConfigured)
	}

	b := &Bus{
		address:     endpoint.InputAddress,
		transport:   endpoint.Transport,
		router:      endpoint.Router,
		storage:     endpoint.Subscriptions,
		serializer:  json.New(nil),
		propagator:  cbus.NopHeaderPropagator{},
		extractor:   cbus.NopHeaderPropagator{},
		logger:      slog.New(slog.DiscardHandler),
		parallelism: DefaultParallelism,
		newID:       newMessageID,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Address returns the endpoint's own input queue address.
func (b *Bus) Address() string { return b.address }

// SendLocal sends msg to this endpoint's own input queue. No routing is consulted.
func (b *Bus) SendLocal(ctx context.Context, msg any, headers cbus.Headers) error {
	op := fmt.Sprintf("send local %T", msg)
	if err := b.check(ctx, op); err != nil {
		return err
	}

	out := &outgoing{op: op, msg: msg, intent: cbus.IntentPointToPoint, headers: headers}

	return b.dispatch(ctx, out, []string{b.address}, b.transport.SendTo)
}

// Send routes msg to the single destination owning its type.
func (b *Bus) Send(ctx context.Context, msg any, headers cbus.Headers) error {
	op := fmt.Sprintf("send %T", msg)
	if err := b.check(ctx, op); err != nil {
		return err
	}

	if b.router == nil {
		return fmt.Errorf("%s: no router: %w", op, berr.ErrRouting)
	}

	addr, err := b.router.GetDestinationAddress(ctx, msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	out := &outgoing{op: op, msg: msg, intent: cbus.IntentPointToPoint, headers: headers}

	return b.dispatch(ctx, out, []string{addr}, b.transport.SendTo)
}

// Reply sends msg to the ReturnAddress of the message currently being handled.
// Outside a handler it fails with ErrInvalidOperation.
func (b *Bus) Reply(ctx context.Context, msg any, headers cbus.Headers) error {
	op := fmt.Sprintf("reply %T", msg)
	if err := b.check(ctx, op); err != nil {
		return err
	}

	in, ok := incoming(ctx)
	if !ok {
		return fmt.Errorf("%s: no message is being handled: %w", op, berr.ErrInvalidOperation)
	}

	addr, ok := in.Lookup(cbus.HeaderReturnAddress)
	if !ok {
		return fmt.Errorf("%s: %w: %s", op, berr.ErrMissingHeader, cbus.HeaderReturnAddress)
	}

	out := &outgoing{op: op, msg: msg, intent: cbus.IntentPointToPoint, headers: headers}
	if id, ok := in.Lookup(cbus.HeaderMessageID); ok {
		out.stamped = cbus.Headers{cbus.HeaderInReplyTo: id}
	}

	return b.dispatch(ctx, out, []string{addr}, b.transport.SendTo)
}

// Publish delivers msg to every subscriber of topic. Transports with native topic support
// receive one publish; otherwise each address from the subscription storage gets a copy.
// Publishing to a topic without subscribers succeeds without contacting the transport.
func (b *Bus) Publish(ctx context.Context, topic string, msg any, headers cbus.Headers) error {
	op := fmt.Sprintf("publish %T", msg)
	if err := b.check(ctx, op); err != nil {
		return err
	}

	if topic == "" {
		return fmt.Errorf("%s: empty topic: %w", op, berr.ErrInvalidOperation)
	}

	out := &outgoing{
		op:      op,
		msg:     msg,
		intent:  cbus.IntentPublish,
		headers: headers,
		stamped: cbus.Headers{cbus.HeaderTopic: topic},
	}

	if tp, ok := b.transport.(cbus.TopicPublisher); ok && tp.SupportsNativeTopicPublish(topic) {
		return b.dispatch(ctx, out, []string{topic}, func(ctx context.Context, t string, env *cbus.Envelope) error {
			return tp.PublishNative(ctx, t, env)
		})
	}

	addrs, err := b.storage.GetSubscriberAddresses(ctx, topic)
	if err != nil {
		return fmt.Errorf("%s: subscribers of %q: %w", op, topic, err)
	}

	return b.dispatch(ctx, out, addrs, b.transport.SendTo)
}

// Subscribe registers this endpoint as a subscriber of topic. With centralized storage the
// registration is written directly; otherwise a SubscribeRequest is sent to the topic owner.
func (b *Bus) Subscribe(ctx context.Context, topic string) error {
	const op = "subscribe"
	if err := b.check(ctx, op); err != nil {
		return err
	}

	if topic == "" {
		return fmt.Errorf("%s: empty topic: %w", op, berr.ErrInvalidOperation)
	}

	if b.storage.IsCentralized() {
		if err := b.storage.RegisterSubscriber(ctx, topic, b.address); err != nil {
			return fmt.Errorf("%s %q: %w", op, topic, err)
		}

		b.logger.InfoContext(ctx, "subscribed", slog.String("topic", topic), slog.String("address", b.address))

		return nil
	}

	req := cbus.SubscribeRequest{Topic: topic, SubscriberAddress: b.address}

	return b.sendToOwner(ctx, op, topic, req)
}

// Unsubscribe mirrors Subscribe.
func (b *Bus) Unsubscribe(ctx context.Context, topic string) error {
	const op = "unsubscribe"
	if err := b.check(ctx, op); err != nil {
		return err
	}

	if topic == "" {
		return fmt.Errorf("%s: empty topic: %w", op, berr.ErrInvalidOperation)
	}

	if b.storage.IsCentralized() {
		if err := b.storage.UnregisterSubscriber(ctx, topic, b.address); err != nil {
			return fmt.Errorf("%s %q: %w", op, topic, err)
		}

		b.logger.InfoContext(ctx, "unsubscribed", slog.String("topic", topic), slog.String("address", b.address))

		return nil
	}

	req := cbus.UnsubscribeRequest{Topic: topic, SubscriberAddress: b.address}

	return b.sendToOwner(ctx, op, topic, req)
}

func (b *Bus) sendToOwner(ctx context.Context, op, topic string, req any) error {
	if b.router == nil {
		return fmt.Errorf("%s %q: no router: %w", op, topic, berr.ErrRouting)
	}

	owner, err := b.router.GetOwnerAddress(ctx, topic)
	if err != nil {
		return fmt.Errorf("%s %q: %w", op, topic, err)
	}

	out := &outgoing{op: fmt.Sprintf("%s %q", op, topic), msg: req, intent: cbus.IntentPointToPoint}
	if err := b.dispatch(ctx, out, []string{owner}, b.transport.SendTo); err != nil {
		return err
	}

	b.logger.InfoContext(ctx, op+" request sent",
		slog.String("topic", topic),
		slog.String("owner", owner),
	)

	return nil
}

// Close releases the transport and storage when they implement io.Closer.
// It is idempotent; afterwards every operation fails with ErrClosed.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	if c, ok := b.transport.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}

	if c, ok := b.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Bus) check(ctx context.Context, op string) error {
	if b.closed.Load() {
		return fmt.Errorf("%s: %w", op, berr.ErrClosed)
	}

	return ctx.Err()
}
