/*
Package bootstrap wires a servicebus.Bus from a config.Config: transport, optional circuit
breaker, subscription storage, router, serializer and trace propagation.
*/
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	wm "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/next-trace/scg-message-bus/adapters/inmemory"
	"github.com/next-trace/scg-message-bus/adapters/kafka"
	"github.com/next-trace/scg-message-bus/adapters/nats"
	"github.com/next-trace/scg-message-bus/adapters/rabbitmq"
	"github.com/next-trace/scg-message-bus/adapters/resilient"
	"github.com/next-trace/scg-message-bus/adapters/watermill"
	"github.com/next-trace/scg-message-bus/config"
	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/propagation"
	"github.com/next-trace/scg-message-bus/router"
	"github.com/next-trace/scg-message-bus/servicebus"
	"github.com/next-trace/scg-message-bus/subscription/bolt"
	subinmemory "github.com/next-trace/scg-message-bus/subscription/inmemory"
	"github.com/next-trace/scg-message-bus/subscription/redis"
)

// Option customizes what New builds.
type Option func(*options)

type options struct {
	handler cbus.MessageHandler
	network *inmemory.Network
	busOpts []servicebus.BusOption
}

// WithHandler sets the handler for messages the endpoint receives. Only the memory and
// watermill transports consume in-process; other transports are send-only here.
func WithHandler(h cbus.MessageHandler) Option {
	return func(o *options) { o.handler = h }
}

// WithNetwork attaches the endpoint to an existing in-memory network instead of a private one.
func WithNetwork(n *inmemory.Network) Option {
	return func(o *options) { o.network = n }
}

// WithBusOptions appends servicebus options after the configured ones.
func WithBusOptions(opts ...servicebus.BusOption) Option {
	return func(o *options) { o.busOpts = append(o.busOpts, opts...) }
}

// NewLogger builds a JSON logger at level ("debug", "info", "warn", "error"); unknown levels
// fall back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

type builder struct {
	cfg     *config.Config
	logger  *slog.Logger
	opts    options
	cleanup []func()
}

// New builds a Bus for cfg. A nil logger gets a JSON logger on stderr at cfg.LogLevel.
// The returned cleanup closes the bus and releases every connection it opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*servicebus.Bus, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: nil config: %w", berr.ErrNotConfigured)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}

	if logger == nil {
		logger = NewLogger(cfg.LogLevel, os.Stderr)
	}

	b := &builder{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(&b.opts)
	}

	bus, err := b.build(ctx)
	if err != nil {
		b.release()
		return nil, nil, err
	}

	logger.InfoContext(ctx, "service bus ready",
		slog.String("address", cfg.InputAddress),
		slog.String("transport", cfg.Transport.Kind),
		slog.String("subscriptions", cfg.Subscriptions.Kind),
	)

	return bus, b.release, nil
}

func (b *builder) build(ctx context.Context) (*servicebus.Bus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	storage, err := b.storage()
	if err != nil {
		return nil, err
	}

	rt, err := b.router()
	if err != nil {
		return nil, err
	}

	transport, start, err := b.transport(ctx)
	if err != nil {
		return nil, err
	}

	if b.cfg.Transport.Breaker.Enabled {
		transport = resilient.Wrap(transport, resilient.Config{
			FailureThreshold: b.cfg.Transport.Breaker.FailureThreshold,
			OpenTimeout:      b.cfg.Transport.Breaker.OpenTimeout,
			Logger:           b.logger,
		})
	}

	busOpts := []servicebus.BusOption{
		servicebus.WithLogger(b.logger),
		servicebus.WithParallelism(b.cfg.Dispatch.Parallelism),
		servicebus.WithPropagator(propagation.NewOTel(nil)),
	}
	if b.cfg.Dispatch.DistinctMessageIDs {
		busOpts = append(busOpts, servicebus.WithDistinctMessageIDs())
	}

	bus, err := servicebus.New(servicebus.Endpoint{
		InputAddress:  b.cfg.InputAddress,
		Transport:     transport,
		Router:        rt,
		Subscriptions: storage,
	}, append(busOpts, b.opts.busOpts...)...)
	if err != nil {
		return nil, err
	}

	// Close runs before every connection cleanup registered so far
	b.cleanup = append(b.cleanup, func() {
		if err := bus.Close(); err != nil {
			b.logger.Warn("close bus", slog.Any("err", err))
		}
	})

	if start != nil {
		if err := start(bus); err != nil {
			return nil, err
		}
	}

	return bus, nil
}

// release runs cleanups in reverse registration order.
func (b *builder) release() {
	for _, fn := range slices.Backward(b.cleanup) {
		fn()
	}

	b.cleanup = nil
}

func (b *builder) storage() (cbus.SubscriptionStorage, error) {
	sc := b.cfg.Subscriptions

	switch sc.Kind {
	case config.StorageRedis:
		st, cleanup, err := redis.NewWithRedis(redis.Config{
			Addrs:     sc.Redis.Addrs,
			Username:  sc.Redis.Username,
			Password:  sc.Redis.Password,
			KeyPrefix: sc.Redis.KeyPrefix,
		}, redis.WithLogger(b.logger))
		if err != nil {
			return nil, fmt.Errorf("bootstrap redis storage: %w", err)
		}

		b.cleanup = append(b.cleanup, cleanup)

		return st, nil
	case config.StorageBolt:
		st, err := bolt.Open(sc.Bolt.Path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap bolt storage: %w", err)
		}

		// Bus.Close closes it too; a second Close is a no-op
		b.cleanup = append(b.cleanup, func() { _ = st.Close() })

		return st, nil
	default:
		return subinmemory.New(sc.IsCentralized()), nil
	}
}

func (b *builder) router() (*router.Router, error) {
	rc := b.cfg.Routing
	rb := router.NewBuilder()

	for _, r := range rc.Routes {
		rb.Route(r.Message, r.Address)
	}

	for _, o := range rc.Owners {
		rb.Owner(o.Topic, o.Address)
	}

	if rc.DefaultOwner != "" {
		rb.DefaultOwner(rc.DefaultOwner)
	}

	rt, err := rb.Build()
	if err != nil {
		return nil, fmt.Errorf("bootstrap router: %w", err)
	}

	return rt, nil
}

// transport builds the configured transport. start, when non-nil, begins in-process
// consumption once the bus exists.
func (b *builder) transport(ctx context.Context) (cbus.Transport, func(*servicebus.Bus) error, error) {
	tc := b.cfg.Transport

	switch tc.Kind {
	case config.TransportNATS:
		ad, cleanup, err := nats.NewWithNATS(nats.Config{
			URL:           tc.NATS.URL,
			Name:          tc.NATS.Name,
			ConnTimeout:   tc.NATS.ConnectTimeout,
			MaxReconnects: tc.NATS.MaxReconnects,
			NativeTopics:  tc.NativeTopics,
			TopicPrefix:   tc.TopicPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap nats: %w", err)
		}

		b.cleanup = append(b.cleanup, cleanup)

		return ad, nil, nil
	case config.TransportKafka:
		ad, cleanup, err := kafka.NewWithKgo(kafka.Config{
			Brokers:      tc.Kafka.Brokers,
			ClientID:     tc.Kafka.ClientID,
			Idempotent:   true,
			NativeTopics: tc.NativeTopics,
			TopicPrefix:  tc.TopicPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap kafka: %w", err)
		}

		b.cleanup = append(b.cleanup, cleanup)

		return ad, nil, nil
	case config.TransportRabbitMQ:
		ad, cleanup, err := rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:          tc.RabbitMQ.URL,
			ConnTimeout:  tc.RabbitMQ.ConnTimeout,
			NativeTopics: tc.NativeTopics,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap rabbitmq: %w", err)
		}

		b.cleanup = append(b.cleanup, cleanup)

		return ad, nil, nil
	case config.TransportWatermill:
		return b.watermill(ctx)
	default:
		return b.memory()
	}
}

func (b *builder) memory() (cbus.Transport, func(*servicebus.Bus) error, error) {
	net, owned := b.opts.network, false
	if net == nil {
		net, owned = inmemory.NewNetwork(b.logger), true
	}

	start := func(bus *servicebus.Bus) error {
		if owned {
			// delivery stops before the bus closes
			b.cleanup = append(b.cleanup, net.Stop)
		}

		return net.Attach(b.cfg.InputAddress, bus, b.opts.handler)
	}

	return net, start, nil
}

func (b *builder) watermill(ctx context.Context) (cbus.Transport, func(*servicebus.Bus) error, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wm.NewSlogLogger(b.logger))

	var opts []watermill.Option
	if b.cfg.Transport.NativeTopics {
		opts = append(opts, watermill.WithNativeTopics(b.cfg.Transport.TopicPrefix))
	}

	// the pub/sub is closed by Bus.Close through the adapter
	ad := watermill.New(pubSub, opts...)

	start := func(bus *servicebus.Bus) error {
		subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

		msgs, err := pubSub.Subscribe(subCtx, b.cfg.InputAddress)
		if err != nil {
			cancel()
			return fmt.Errorf("bootstrap watermill subscribe: %w", err)
		}

		var wg sync.WaitGroup

		wg.Add(1)

		go func() {
			defer wg.Done()

			for msg := range msgs {
				if err := bus.Handle(msg.Context(), watermill.FromMessage(msg), b.opts.handler); err != nil {
					b.logger.Warn("watermill delivery failed",
						slog.String("address", b.cfg.InputAddress),
						slog.String("message_id", msg.UUID),
						slog.Any("err", err),
					)
				}

				msg.Ack()
			}
		}()

		b.cleanup = append(b.cleanup, func() {
			cancel()
			wg.Wait()
		})

		return nil
	}

	return ad, start, nil
}
