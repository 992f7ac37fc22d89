package nats

import (
	"context"
	"errors"
	"fmt"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// DefaultTopicPrefix is prepended to topic names for native publish.
const DefaultTopicPrefix = "topic."

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
}

// Adapter implements cbus.Adapter using an injected NATS-like Client.
// Addresses are subjects; topics map to subjects under the topic prefix.
type Adapter struct {
	Client Client

	native      bool
	topicPrefix string
}

// Ensure Adapter implements the combined contract.
var _ cbus.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithNativeTopics enables native topic publish on subjects prefix+topic.
// An empty prefix keeps DefaultTopicPrefix.
func WithNativeTopics(prefix string) Option {
	return func(a *Adapter) {
		a.native = true
		if prefix != "" {
			a.topicPrefix = prefix
		}
	}
}

// New creates a new NATS adapter instance with the provided client.
func New(c Client, opts ...Option) *Adapter {
	a := &Adapter{Client: c, topicPrefix: DefaultTopicPrefix}
	for _, o := range opts {
		o(a)
	}

	return a
}

// SendTo publishes env on the subject named by address.
func (a *Adapter) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	return a.publish(ctx, "send", address, env)
}

// SupportsNativeTopicPublish reports whether native topics were enabled.
func (a *Adapter) SupportsNativeTopicPublish(string) bool { return a.native }

// PublishNative publishes env on the topic's subject.
func (a *Adapter) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	return a.publish(ctx, "publish", a.TopicSubject(topic), env)
}

// TopicSubject returns the subject used for topic.
func (a *Adapter) TopicSubject(topic string) string { return a.topicPrefix + topic }

func (a *Adapter) publish(ctx context.Context, label, subject string, env *cbus.Envelope) error {
	if err := a.ready(ctx, label); err != nil {
		return err
	}

	if subject == "" {
		return fmt.Errorf("nats %s: empty subject: %w", label, berr.ErrInvalidOperation)
	}

	if err := a.Client.Publish(subject, env.Body, env.Headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats %s %s: %w", label, subject, errors.Join(berr.ErrTransportFailed, err))
	}

	return nil
}

func (a *Adapter) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats %s: %w", label, berr.ErrNotConfigured)
	}

	return nil
}
