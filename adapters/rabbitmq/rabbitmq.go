package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// TopicExchange is the exchange native topic publishes go to.
const TopicExchange = "integration"

type PubMsg struct {
	Exchange    string
	RoutingKey  string
	MessageID   string
	ContentType string
	Body        []byte
	Headers     map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Adapter sends to queues through the default exchange (routing key = address) and, when
// native topics are enabled, publishes topics to TopicExchange with routing key = topic.
type Adapter struct {
	Publisher Publisher

	native bool
}

var _ cbus.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithNativeTopics routes Publish through TopicExchange instead of per-subscriber sends.
func WithNativeTopics() Option {
	return func(a *Adapter) { a.native = true }
}

func New(p Publisher, opts ...Option) *Adapter {
	a := &Adapter{Publisher: p}
	for _, o := range opts {
		o(a)
	}

	return a
}

func (a *Adapter) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	return a.publish(ctx, "send", "", address, env)
}

func (a *Adapter) SupportsNativeTopicPublish(string) bool { return a.native }

func (a *Adapter) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	return a.publish(ctx, "publish", TopicExchange, topic, env)
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq %s: %w", label, berr.ErrNotConfigured)
	}

	return nil
}

func (a *Adapter) publish(ctx context.Context, label, exchange, routingKey string, env *cbus.Envelope) error {
	if err := a.ready(ctx, label); err != nil {
		return err
	}

	if routingKey == "" {
		return fmt.Errorf("rabbitmq %s: empty routing key: %w", label, berr.ErrInvalidOperation)
	}

	msg := PubMsg{
		Exchange:    exchange,
		RoutingKey:  routingKey,
		MessageID:   env.Headers.Get(cbus.HeaderMessageID),
		ContentType: env.Headers.Get(cbus.HeaderContentType),
		Body:        env.Body,
		Headers:     env.Headers,
	}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq %s %q: %w", label, routingKey, errors.Join(berr.ErrTransportFailed, err))
	}

	return nil
}

func publishing(m PubMsg) amqp.Publishing {
	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Headers:      h,
		MessageId:    m.MessageID,
		ContentType:  m.ContentType,
		Body:         m.Body,
	}
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, publishing(m))
}

// NewWithAMQPChannel wraps an already open channel. The caller declares TopicExchange if
// native topics are enabled.
func NewWithAMQPChannel(ch *amqp.Channel, opts ...Option) *Adapter {
	return New(amqpChannelPublisher{ch: ch}, opts...)
}
