/*
Package watermill sends bus envelopes through any watermill message.Publisher.
An address is a watermill topic; native topic publishes go to the topic prefix plus the bus topic.
*/
package watermill

import (
	"context"
	"errors"
	"fmt"

	wm "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// DefaultTopicPrefix is prepended to bus topics for native publish.
const DefaultTopicPrefix = "topic."

type Adapter struct {
	publisher message.Publisher

	native      bool
	topicPrefix string
}

var _ cbus.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithNativeTopics publishes bus topics on watermill topic prefix+topic.
func WithNativeTopics(prefix string) Option {
	return func(a *Adapter) {
		a.native = true
		if prefix != "" {
			a.topicPrefix = prefix
		}
	}
}

func New(p message.Publisher, opts ...Option) *Adapter {
	a := &Adapter{publisher: p, topicPrefix: DefaultTopicPrefix}
	for _, o := range opts {
		o(a)
	}

	return a
}

func (a *Adapter) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	return a.publish(ctx, "send", address, env)
}

func (a *Adapter) SupportsNativeTopicPublish(string) bool { return a.native }

func (a *Adapter) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	return a.publish(ctx, "publish", a.topicPrefix+topic, env)
}

// Close closes the underlying publisher.
func (a *Adapter) Close() error {
	if a.publisher == nil {
		return nil
	}

	return a.publisher.Close()
}

func (a *Adapter) publish(ctx context.Context, label, topic string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.publisher == nil {
		return fmt.Errorf("watermill %s: %w", label, berr.ErrNotConfigured)
	}

	if topic == "" {
		return fmt.Errorf("watermill %s: empty topic: %w", label, berr.ErrInvalidOperation)
	}

	if err := a.publisher.Publish(topic, toMessage(ctx, env)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("watermill %s %q: %w", label, topic, errors.Join(berr.ErrTransportFailed, err))
	}

	return nil
}

func toMessage(ctx context.Context, env *cbus.Envelope) *message.Message {
	id, ok := env.Headers.Lookup(cbus.HeaderMessageID)
	if !ok {
		id = wm.NewUUID()
	}

	msg := message.NewMessage(id, env.Body)
	for k, v := range env.Headers {
		msg.Metadata.Set(k, v)
	}

	msg.SetContext(ctx)

	return msg
}

// FromMessage converts a received watermill message back into an envelope.
func FromMessage(msg *message.Message) *cbus.Envelope {
	h := make(cbus.Headers, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		h[k] = v
	}

	if _, ok := h.Lookup(cbus.HeaderMessageID); !ok {
		h[cbus.HeaderMessageID] = msg.UUID
	}

	return &cbus.Envelope{Headers: h, Body: msg.Payload}
}
