/*
Package config loads endpoint configuration from an optional file and SERVICEBUS_* environment
variables.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// EnvPrefix prefixes every environment variable, e.g. SERVICEBUS_TRANSPORT_KIND.
const EnvPrefix = "SERVICEBUS"

// Transport kinds.
const (
	TransportMemory    = "memory"
	TransportNATS      = "nats"
	TransportKafka     = "kafka"
	TransportRabbitMQ  = "rabbitmq"
	TransportWatermill = "watermill"
)

// Subscription storage kinds.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageBolt   = "bolt"
)

type Config struct {
	InputAddress  string              `mapstructure:"input_address"`
	LogLevel      string              `mapstructure:"log_level"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Subscriptions SubscriptionsConfig `mapstructure:"subscriptions"`
	Routing       RoutingConfig       `mapstructure:"routing"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
}

type TransportConfig struct {
	Kind         string         `mapstructure:"kind"`
	NativeTopics bool           `mapstructure:"native_topics"`
	TopicPrefix  string         `mapstructure:"topic_prefix"`
	NATS         NATSConfig     `mapstructure:"nats"`
	Kafka        KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ     RabbitMQConfig `mapstructure:"rabbitmq"`
	Breaker      BreakerConfig  `mapstructure:"breaker"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

type RabbitMQConfig struct {
	URL         string        `mapstructure:"url"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type SubscriptionsConfig struct {
	Kind string `mapstructure:"kind"`
	// Centralized selects the strategy for the memory storage; redis is always centralized and
	// bolt never is.
	Centralized bool        `mapstructure:"centralized"`
	Redis       RedisConfig `mapstructure:"redis"`
	Bolt        BoltConfig  `mapstructure:"bolt"`
}

type RedisConfig struct {
	Addrs     []string `mapstructure:"addrs"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	KeyPrefix string   `mapstructure:"key_prefix"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// RoutingConfig lists routes as entries because configuration keys are case-insensitive while
// message names and topics are not.
type RoutingConfig struct {
	Routes       []Route `mapstructure:"routes"`
	Owners       []Owner `mapstructure:"owners"`
	DefaultOwner string  `mapstructure:"default_owner"`
}

// Route maps a message name (routing key or unqualified type name) to a destination queue.
type Route struct {
	Message string `mapstructure:"message"`
	Address string `mapstructure:"address"`
}

// Owner names the endpoint that owns a topic's subscriber list.
type Owner struct {
	Topic   string `mapstructure:"topic"`
	Address string `mapstructure:"address"`
}

type DispatchConfig struct {
	Parallelism        int  `mapstructure:"parallelism"`
	DistinctMessageIDs bool `mapstructure:"distinct_message_ids"`
}

// Load reads path (yaml, toml, json or .env by extension) when non-empty, overlays
// SERVICEBUS_* environment variables, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input_address", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("transport.kind", TransportMemory)
	v.SetDefault("transport.native_topics", false)
	v.SetDefault("transport.topic_prefix", "topic.")
	v.SetDefault("transport.nats.url", "")
	v.SetDefault("transport.nats.name", "scg-message-bus")
	v.SetDefault("transport.nats.max_reconnects", 60)
	v.SetDefault("transport.nats.connect_timeout", 2*time.Second)
	v.SetDefault("transport.kafka.brokers", []string{})
	v.SetDefault("transport.kafka.client_id", "scg-message-bus")
	v.SetDefault("transport.rabbitmq.url", "")
	v.SetDefault("transport.rabbitmq.conn_timeout", 5*time.Second)
	v.SetDefault("transport.breaker.enabled", false)
	v.SetDefault("transport.breaker.failure_threshold", 5)
	v.SetDefault("transport.breaker.open_timeout", 30*time.Second)

	v.SetDefault("subscriptions.kind", StorageMemory)
	v.SetDefault("subscriptions.centralized", true)
	v.SetDefault("subscriptions.redis.addrs", []string{})
	v.SetDefault("subscriptions.redis.username", "")
	v.SetDefault("subscriptions.redis.password", "")
	v.SetDefault("subscriptions.redis.key_prefix", "servicebus:subscribers:")
	v.SetDefault("subscriptions.bolt.path", "")

	v.SetDefault("routing.default_owner", "")

	v.SetDefault("dispatch.parallelism", 8)
	v.SetDefault("dispatch.distinct_message_ids", false)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.InputAddress == "" {
		errs = append(errs, errors.New("input_address is required"))
	}

	switch c.Transport.Kind {
	case TransportMemory, TransportWatermill:
	case TransportNATS:
		if c.Transport.NATS.URL == "" {
			errs = append(errs, errors.New("transport.nats.url is required"))
		}
	case TransportKafka:
		if len(c.Transport.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("transport.kafka.brokers is required"))
		}
	case TransportRabbitMQ:
		if c.Transport.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("transport.rabbitmq.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is unknown", c.Transport.Kind))
	}

	switch c.Subscriptions.Kind {
	case StorageMemory:
	case StorageRedis:
		if len(c.Subscriptions.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("subscriptions.redis.addrs is required"))
		}
	case StorageBolt:
		if c.Subscriptions.Bolt.Path == "" {
			errs = append(errs, errors.New("subscriptions.bolt.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("subscriptions.kind %q is unknown", c.Subscriptions.Kind))
	}

	for i, r := range c.Routing.Routes {
		if r.Message == "" || r.Address == "" {
			errs = append(errs, fmt.Errorf("routing.routes[%d] needs message and address", i))
		}
	}

	for i, o := range c.Routing.Owners {
		if o.Topic == "" || o.Address == "" {
			errs = append(errs, fmt.Errorf("routing.owners[%d] needs topic and address", i))
		}
	}

	if c.Dispatch.Parallelism < 1 {
		errs = append(errs, errors.New("dispatch.parallelism must be at least 1"))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("config: %w", errors.Join(append([]error{berr.ErrNotConfigured}, errs...)...))
}

// IsCentralized reports whether the configured storage is centralized.
func (s SubscriptionsConfig) IsCentralized() bool {
	switch s.Kind {
	case StorageRedis:
		return true
	case StorageBolt:
		return false
	default:
		return s.Centralized
	}
}
