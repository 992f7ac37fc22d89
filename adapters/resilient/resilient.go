/*
Package resilient wraps a bus transport with one circuit breaker per destination address.
A destination that keeps failing is short-circuited with gobreaker.ErrOpenState until the
breaker half-opens again; other destinations are unaffected.
*/
package resilient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// Default breaker settings.
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
)

type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a breaker.
	FailureThreshold uint32
	// OpenTimeout is how long a breaker stays open before half-opening.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

// Transport guards every per-address send with its own breaker.
type Transport struct {
	next     cbus.Transport
	settings gobreaker.Settings
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

var _ cbus.Transport = (*Transport)(nil)

// Wrap returns a breaker-guarded transport. When next also implements bus.TopicPublisher the
// returned value does too, so native topic publish keeps working.
func Wrap(next cbus.Transport, cfg Config) cbus.Transport { //nolint:ireturn
	t := newTransport(next, cfg)
	if tp, ok := next.(cbus.TopicPublisher); ok {
		return &topicTransport{Transport: t, topics: tp}
	}

	return t
}

func newTransport(next cbus.Transport, cfg Config) *Transport {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}

	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	t := &Transport{
		next:     next,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}

	t.settings = gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a canceled caller says nothing about the destination
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("address", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return t
}

func (t *Transport) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	_, err := t.breaker(address).Execute(func() (struct{}, error) {
		return struct{}{}, t.next.SendTo(ctx, address, env)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("send %q: %w", address, errors.Join(berr.ErrTransportFailed, err))
	}

	return err
}

// State reports the breaker state for address.
func (t *Transport) State(address string) gobreaker.State {
	return t.breaker(address).State()
}

// Close closes the wrapped transport when it implements io.Closer.
func (t *Transport) Close() error {
	if c, ok := t.next.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func (t *Transport) breaker(address string) *gobreaker.CircuitBreaker[struct{}] {
	t.mu.Lock()
	defer t.mu.Unlock()

	cb, ok := t.breakers[address]
	if !ok {
		st := t.settings
		st.Name = address
		cb = gobreaker.NewCircuitBreaker[struct{}](st)
		t.breakers[address] = cb
	}

	return cb
}

type topicTransport struct {
	*Transport

	topics cbus.TopicPublisher
}

func (t *topicTransport) SupportsNativeTopicPublish(topic string) bool {
	return t.topics.SupportsNativeTopicPublish(topic)
}

func (t *topicTransport) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	return t.topics.PublishNative(ctx, topic, env)
}
