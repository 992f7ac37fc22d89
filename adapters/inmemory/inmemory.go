package inmemory

import (
	"context"
	"sync"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

// Delivery is one recorded transport handoff.
type Delivery struct {
	Address  string
	Topic    string // set for native topic publishes
	Envelope *cbus.Envelope
}

// Transport is a thread-safe in-memory implementation of cbus.Adapter.
// It records every handoff for testing and examples.
type Transport struct {
	mu         sync.Mutex
	deliveries []Delivery

	// Fail, when set, is consulted before recording; a non-nil result fails the send.
	Fail func(address string) error
	// Native makes the transport claim native topic publish for every topic.
	Native bool
}

// Ensure Transport implements the combined contract.
var _ cbus.Adapter = (*Transport)(nil)

// New creates a new in-memory transport instance.
func New() *Transport { return &Transport{} }

func (t *Transport) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Fail != nil {
		if err := t.Fail(address); err != nil {
			return err
		}
	}

	t.record(Delivery{Address: address, Envelope: env.Clone()})

	return nil
}

func (t *Transport) SupportsNativeTopicPublish(string) bool { return t.Native }

func (t *Transport) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.record(Delivery{Topic: topic, Envelope: env.Clone()})

	return nil
}

// Deliveries returns a copy of everything recorded so far, in handoff order.
func (t *Transport) Deliveries() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Delivery(nil), t.deliveries...)
}

// SentTo returns the envelopes handed off for address.
func (t *Transport) SentTo(address string) []*cbus.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*cbus.Envelope

	for _, d := range t.deliveries {
		if d.Topic == "" && d.Address == address {
			out = append(out, d.Envelope)
		}
	}

	return out
}

// Reset forgets all recorded deliveries.
func (t *Transport) Reset() {
	t.mu.Lock()
	t.deliveries = nil
	t.mu.Unlock()
}

func (t *Transport) record(d Delivery) {
	t.mu.Lock()
	t.deliveries = append(t.deliveries, d)
	t.mu.Unlock()
}
