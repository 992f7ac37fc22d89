package bootstrap_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-message-bus/adapters/inmemory"
	"github.com/next-trace/scg-message-bus/bootstrap"
	"github.com/next-trace/scg-message-bus/config"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/serialization"
	"github.com/next-trace/scg-message-bus/serialization/json"
	"github.com/next-trace/scg-message-bus/servicebus"
	"github.com/next-trace/scg-message-bus/subscription/bolt"
)

type Greeting struct{ Text string }

func baseConfig(address string) *config.Config {
	return &config.Config{
		InputAddress:  address,
		LogLevel:      "error",
		Transport:     config.TransportConfig{Kind: config.TransportMemory, TopicPrefix: "topic."},
		Subscriptions: config.SubscriptionsConfig{Kind: config.StorageMemory, Centralized: true},
		Dispatch:      config.DispatchConfig{Parallelism: 4},
	}
}

func collect(ch chan any) bootstrap.Option {
	return bootstrap.WithHandler(func(_ context.Context, msg any) error {
		ch <- msg
		return nil
	})
}

func await(t *testing.T, ch chan any) any {
	t.Helper()

	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
		return nil
	}
}

func TestNew_Validation(t *testing.T) {
	_, _, err := bootstrap.New(t.Context(), nil, nil)
	require.ErrorIs(t, err, berr.ErrNotConfigured)

	_, _, err = bootstrap.New(t.Context(), baseConfig(""), nil)
	require.ErrorIs(t, err, berr.ErrNotConfigured)
}

func TestNew_MemoryTransport(t *testing.T) {
	got := make(chan any, 1)

	bus, cleanup, err := bootstrap.New(t.Context(), baseConfig("me"), nil, collect(got))
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, bus.SendLocal(t.Context(), Greeting{Text: "hi"}, nil))
	require.Equal(t, Greeting{Text: "hi"}, await(t, got))
}

func TestNew_SharedNetworkRouting(t *testing.T) {
	net := inmemory.NewNetwork(nil)
	defer net.Stop()

	got := make(chan any, 1)

	// both endpoints decode with one registry
	reg := serialization.NewTypeRegistry()
	require.NoError(t, reg.Register(Greeting{}))

	codec := bootstrap.WithBusOptions(servicebus.WithSerializer(json.New(reg)))

	_, cleanupServer, err := bootstrap.New(t.Context(), baseConfig("server"), nil,
		bootstrap.WithNetwork(net), collect(got), codec)
	require.NoError(t, err)
	defer cleanupServer()

	clientCfg := baseConfig("client")
	clientCfg.Routing.Routes = []config.Route{{Message: "Greeting", Address: "server"}}

	client, cleanupClient, err := bootstrap.New(t.Context(), clientCfg, nil, bootstrap.WithNetwork(net), codec)
	require.NoError(t, err)
	defer cleanupClient()

	require.NoError(t, client.Send(t.Context(), Greeting{Text: "routed"}, nil))
	require.Equal(t, Greeting{Text: "routed"}, await(t, got))
}

func TestNew_WatermillTransport(t *testing.T) {
	cfg := baseConfig("wm-endpoint")
	cfg.Transport.Kind = config.TransportWatermill
	cfg.Transport.Breaker = config.BreakerConfig{Enabled: true, FailureThreshold: 3, OpenTimeout: time.Second}

	got := make(chan any, 1)

	bus, cleanup, err := bootstrap.New(t.Context(), cfg, nil, collect(got))
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, bus.SendLocal(t.Context(), Greeting{Text: "via watermill"}, nil))
	require.Equal(t, Greeting{Text: "via watermill"}, await(t, got))
}

func TestNew_BoltDecentralized(t *testing.T) {
	cfg := baseConfig("subscriber")
	cfg.Subscriptions = config.SubscriptionsConfig{
		Kind: config.StorageBolt,
		Bolt: config.BoltConfig{Path: filepath.Join(t.TempDir(), "subs.db")},
	}
	cfg.Routing.Owners = []config.Owner{{Topic: "prices", Address: "subscriber"}}

	bus, cleanup, err := bootstrap.New(t.Context(), cfg, nil)
	require.NoError(t, err)

	// the endpoint owns the topic: its subscribe request comes back to itself
	require.NoError(t, bus.Subscribe(t.Context(), "prices"))
	require.ErrorIs(t, bus.Subscribe(t.Context(), "unowned"), berr.ErrRouting)

	cleanup()

	require.ErrorIs(t, bus.SendLocal(t.Context(), Greeting{}, nil), berr.ErrClosed)
}

func TestNew_FailureReleasesBoltFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.db")

	cfg := baseConfig("me")
	cfg.Subscriptions = config.SubscriptionsConfig{
		Kind: config.StorageBolt,
		Bolt: config.BoltConfig{Path: path},
	}
	cfg.Routing.Routes = []config.Route{
		{Message: "A", Address: "x"},
		{Message: "A", Address: "y"},
	}

	_, _, err := bootstrap.New(t.Context(), cfg, nil)
	require.Error(t, err)

	// the file lock is gone once New has failed
	st, err := bolt.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := baseConfig("me")
	cfg.Subscriptions = config.SubscriptionsConfig{
		Kind:  config.StorageRedis,
		Redis: config.RedisConfig{Addrs: []string{"127.0.0.1:1"}},
	}

	_, _, err := bootstrap.New(t.Context(), cfg, nil)
	require.Error(t, err)
}

func TestNewLogger_Levels(t *testing.T) {
	require.True(t, bootstrap.NewLogger("debug", io.Discard).Enabled(t.Context(), slog.LevelDebug))
	require.False(t, bootstrap.NewLogger("warn", io.Discard).Enabled(t.Context(), slog.LevelInfo))
	require.True(t, bootstrap.NewLogger("bogus", io.Discard).Enabled(t.Context(), slog.LevelInfo))
}
