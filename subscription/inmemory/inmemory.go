package inmemory

import (
	"context"
	"slices"
	"sync"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

// Storage is a thread-safe in-memory implementation of cbus.SubscriptionStorage.
// Each topic has its own lock, so writers on one topic never block readers of another.
type Storage struct {
	centralized bool

	mu     sync.Mutex
	topics map[string]*topicSet
}

type topicSet struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

var _ cbus.SubscriptionStorage = (*Storage)(nil)

// New creates an empty storage. centralized decides how the bus coordinates subscriptions:
// true when every endpoint shares this instance (tests, single process), false when it only
// holds the subscribers of topics owned by this endpoint.
func New(centralized bool) *Storage {
	return &Storage{centralized: centralized, topics: make(map[string]*topicSet)}
}

func (s *Storage) IsCentralized() bool { return s.centralized }

func (s *Storage) GetSubscriberAddresses(ctx context.Context, topic string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts := s.topic(topic, false)
	if ts == nil {
		return []string{}, nil
	}

	ts.mu.RLock()
	out := make([]string, 0, len(ts.addrs))
	for a := range ts.addrs {
		out = append(out, a)
	}
	ts.mu.RUnlock()

	slices.Sort(out)

	return out, nil
}

func (s *Storage) RegisterSubscriber(ctx context.Context, topic, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := s.topic(topic, true)

	ts.mu.Lock()
	ts.addrs[address] = struct{}{}
	ts.mu.Unlock()

	return nil
}

func (s *Storage) UnregisterSubscriber(ctx context.Context, topic, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := s.topic(topic, false)
	if ts == nil {
		return nil
	}

	ts.mu.Lock()
	delete(ts.addrs, address)
	ts.mu.Unlock()

	return nil
}

func (s *Storage) topic(topic string, create bool) *topicSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.topics[topic]
	if !ok && create {
		ts = &topicSet{addrs: make(map[string]struct{})}
		s.topics[topic] = ts
	}

	return ts
}
