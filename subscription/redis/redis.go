package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/rueidis"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// DefaultKeyPrefix namespaces subscriber sets: <prefix><topic>.
const DefaultKeyPrefix = "servicebus:subscribers:"

// Config - connection settings for NewWithRedis.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	KeyPrefix string
}

// Storage is a centralized cbus.SubscriptionStorage keeping one Redis set per topic.
// SADD, SREM and SMEMBERS are atomic on the server, which gives per-topic mutual
// exclusion and snapshot reads without client-side locking.
type Storage struct {
	client rueidis.Client
	prefix string
	logger *slog.Logger
}

var _ cbus.SubscriptionStorage = (*Storage)(nil)

// Option configures a Storage.
type Option func(*Storage)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Storage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for write diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps an existing rueidis client. The caller keeps ownership of the client.
func New(client rueidis.Client, opts ...Option) *Storage {
	s := &Storage{
		client: client,
		prefix: DefaultKeyPrefix,
		logger: slog.New(slog.DiscardHandler),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// NewWithRedis dials Redis and returns a Storage and a cleanup that closes the client.
func NewWithRedis(cfg Config, opts ...Option) (*Storage, func(), error) {
	if len(cfg.Addrs) == 0 {
		return nil, nil, fmt.Errorf("%w: redis address required", berr.ErrNotConfigured)
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: cfg.Addrs,
		Username:    cfg.Username,
		Password:    cfg.Password,
		SelectDB:    0, // use default DB
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: redis connect: %w", berr.ErrStorageFailed, err)
	}

	s := New(client, append([]Option{WithKeyPrefix(cfg.KeyPrefix)}, opts...)...)

	return s, client.Close, nil
}

func (*Storage) IsCentralized() bool { return true }

func (s *Storage) GetSubscriberAddresses(ctx context.Context, topic string) ([]string, error) {
	members, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.Key(topic)).Build()).AsStrSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return []string{}, nil
		}

		return nil, wrap("get subscribers", topic, err)
	}

	slices.Sort(members)

	return members, nil
}

func (s *Storage) RegisterSubscriber(ctx context.Context, topic, address string) error {
	added, err := s.client.Do(ctx, s.client.B().Sadd().Key(s.Key(topic)).Member(address).Build()).AsInt64()
	if err != nil {
		return wrap("register subscriber", topic, err)
	}

	s.logger.DebugContext(ctx, "redis subscriber registered",
		slog.String("topic", topic), slog.String("address", address), slog.Bool("new", added > 0))

	return nil
}

func (s *Storage) UnregisterSubscriber(ctx context.Context, topic, address string) error {
	if err := s.client.Do(ctx, s.client.B().Srem().Key(s.Key(topic)).Member(address).Build()).Error(); err != nil {
		return wrap("unregister subscriber", topic, err)
	}

	return nil
}

// Key returns the Redis key holding the subscribers of topic.
func (s *Storage) Key(topic string) string { return s.prefix + topic }

func wrap(op, topic string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("redis %s %q: %w", op, topic, errors.Join(berr.ErrStorageFailed, err))
}
