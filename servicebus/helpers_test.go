package servicebus_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
	"github.com/next-trace/scg-message-bus/router"
	"github.com/next-trace/scg-message-bus/serialization"
	"github.com/next-trace/scg-message-bus/serialization/json"
	"github.com/next-trace/scg-message-bus/servicebus"
	"github.com/next-trace/scg-message-bus/subscription/inmemory"
)

type OrderPlaced struct{ ID string }

type OrderAccepted struct{ ID string }

type PriceChanged struct{ Symbol string }

var errBoom = errors.New("boom")

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sent struct {
	Address string
	Env     *cbus.Envelope
}

// fakeTransport records every handoff and fails for configured addresses.
type fakeTransport struct {
	mu     sync.Mutex
	sends  []sent
	fail   map[string]error
	closed int
}

func (f *fakeTransport) SendTo(ctx context.Context, address string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := f.fail[address]; err != nil {
		return err
	}

	f.mu.Lock()
	f.sends = append(f.sends, sent{Address: address, Env: env.Clone()})
	f.mu.Unlock()

	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()

	return nil
}

func (f *fakeTransport) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := append([]sent(nil), f.sends...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	return out
}

// nativeTransport publishes topics natively.
type nativeTransport struct {
	fakeTransport

	topics []string
}

func (n *nativeTransport) SupportsNativeTopicPublish(topic string) bool { return topic != "legacy" }

func (n *nativeTransport) PublishNative(ctx context.Context, topic string, env *cbus.Envelope) error {
	n.mu.Lock()
	n.topics = append(n.topics, topic)
	n.mu.Unlock()

	return nil
}

// countingRouter counts every lookup before delegating to next.
type countingRouter struct {
	next  cbus.Router
	calls atomic.Int32
}

func (r *countingRouter) GetDestinationAddress(ctx context.Context, msg any) (string, error) {
	r.calls.Add(1)
	return r.next.GetDestinationAddress(ctx, msg)
}

func (r *countingRouter) GetOwnerAddress(ctx context.Context, topic string) (string, error) {
	r.calls.Add(1)
	return r.next.GetOwnerAddress(ctx, topic)
}

type failingSerializer struct{}

func (failingSerializer) Serialize(context.Context, any, cbus.Headers) ([]byte, error) {
	return nil, errBoom
}

func (failingSerializer) Deserialize(context.Context, cbus.Headers, []byte) (any, error) {
	return nil, errBoom
}

type testEnv struct {
	bus       *servicebus.Bus
	transport *fakeTransport
	storage   *inmemory.Storage
}

func newRouter(t *testing.T) *router.Router {
	t.Helper()

	b := router.NewBuilder()
	router.Map[OrderPlaced](b, "orders")
	b.Owner("prices", "pricing")

	r, err := b.Build()
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	return r
}

func newTestBus(t *testing.T, centralized bool, opts ...servicebus.BusOption) testEnv {
	t.Helper()

	tr := &fakeTransport{fail: map[string]error{}}
	st := inmemory.New(centralized)

	reg := serialization.NewTypeRegistry()
	if err := reg.Register(OrderPlaced{}, OrderAccepted{}, PriceChanged{}); err != nil {
		t.Fatalf("register types: %v", err)
	}

	ids := 0
	base := []servicebus.BusOption{
		servicebus.WithSerializer(json.New(reg)),
		servicebus.WithClock(func() time.Time { return fixedTime }),
		servicebus.WithIDGenerator(func() string {
			ids++
			return "id-" + strconv.Itoa(ids)
		}),
	}

	b, err := servicebus.New(servicebus.Endpoint{
		InputAddress:  "me",
		Transport:     tr,
		Router:        newRouter(t),
		Subscriptions: st,
	}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	return testEnv{bus: b, transport: tr, storage: st}
}

func mustTransportError(t *testing.T, err error) *berr.TransportError {
	t.Helper()

	var te *berr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}

	return te
}
