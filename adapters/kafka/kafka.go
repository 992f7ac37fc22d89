package kafka

import (
	"context"
	"errors"
	"fmt"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// DefaultTopicPrefix is prepended to bus topics for native publish.
const DefaultTopicPrefix = "topic."

// Writer is a minimal Kafka-like writer interface.
// Users can adapt franz-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements cbus.Adapter using an injected Writer.
// An address is a Kafka topic; the MessageId is used as record key.
type Adapter struct {
	Writer Writer

	native      bool
	topicPrefix string
}

var _ cbus.Adapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithNativeTopics enables native publish to Kafka topics prefix+topic.
func WithNativeTopics(prefix string) Option {
	return func(a *Adapter) {
		a.native = true
		if prefix != "" {
			a.topicPrefix = prefix
		}
	}
}

// New creates a new Kafka adapter instance with the provided writer.
func New(w Writer, opts ...Option) *Adapter {
	a := &Adapter{Writer: w, topicPrefix: DefaultTopicPrefix}
	for _, o := range opts {
		o(a)
	}

	return a
}

func (a *Adapter) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	return a.write(ctx, "send", address, env)
}

func (a *Adapter) SupportsNativeTopicPublish(string) bool { return a.native }

func (a *Adapter) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	return a.write(ctx, "publish", a.topicPrefix+topic, env)
}

func (a *Adapter) write(ctx context.Context, label, topic string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka %s: %w", label, berr.ErrNotConfigured)
	}

	if topic == "" {
		return fmt.Errorf("kafka %s: empty topic: %w", label, berr.ErrInvalidOperation)
	}

	key := []byte(env.Headers.Get(cbus.HeaderMessageID))

	if err := a.Writer.Write(ctx, topic, key, env.Body, env.Headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// separate return from preceding multi-line block (wsl)
		return fmt.Errorf("kafka %s write %q: %w", label, topic, errors.Join(berr.ErrTransportFailed, err))
	}

	return nil
}
