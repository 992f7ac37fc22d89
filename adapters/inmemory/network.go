package inmemory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// DefaultQueueSize is the per-endpoint input queue capacity.
const DefaultQueueSize = 64

// Receiver handles one inbound envelope. *servicebus.Bus satisfies it.
type Receiver interface {
	Handle(ctx context.Context, env *cbus.Envelope, handler cbus.MessageHandler) error
}

// Network connects in-process endpoints. It is a cbus.Transport shared by every attached bus:
// SendTo enqueues on the destination's input queue and a worker per endpoint hands each
// envelope to its Receiver.
type Network struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type endpoint struct {
	address  string
	queue    chan *cbus.Envelope
	receiver Receiver
	handler  cbus.MessageHandler
}

var _ cbus.Transport = (*Network)(nil)

// NewNetwork creates an empty network. A nil logger discards output.
func NewNetwork(logger *slog.Logger) *Network {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Network{
		endpoints: make(map[string]*endpoint),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Attach creates the input queue for address and starts delivering to r.
// handler receives every non-control message.
func (n *Network) Attach(address string, r Receiver, handler cbus.MessageHandler) error {
	if address == "" || r == nil {
		return fmt.Errorf("attach %q: %w", address, berr.ErrInvalidOperation)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctx.Err() != nil {
		return fmt.Errorf("attach %q: %w", address, berr.ErrClosed)
	}

	if _, exists := n.endpoints[address]; exists {
		return fmt.Errorf("attach %q: address in use: %w", address, berr.ErrInvalidOperation)
	}

	ep := &endpoint{
		address:  address,
		queue:    make(chan *cbus.Envelope, DefaultQueueSize),
		receiver: r,
		handler:  handler,
	}
	n.endpoints[address] = ep

	n.wg.Add(1)

	go n.run(ep)

	return nil
}

// SendTo enqueues a copy of env on the input queue of address.
func (n *Network) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.RLock()
	ep, ok := n.endpoints[address]
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("inmemory send: no queue %q: %w", address, berr.ErrTransportFailed)
	}

	select {
	case ep.queue <- env.Clone():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.ctx.Done():
		return fmt.Errorf("inmemory send %q: %w", address, berr.ErrClosed)
	}
}

// Stop halts delivery and waits for in-flight handlers to return. Queued envelopes are dropped.
func (n *Network) Stop() {
	n.mu.Lock()
	n.cancel()
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *Network) run(ep *endpoint) {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case env := <-ep.queue:
			if err := ep.receiver.Handle(n.ctx, env, ep.handler); err != nil {
				n.logger.WarnContext(n.ctx, "inmemory delivery failed",
					slog.String("address", ep.address),
					slog.String("message_id", env.Headers.Get(cbus.HeaderMessageID)),
					slog.Any("err", err),
				)
			}
		}
	}
}
