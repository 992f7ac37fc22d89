package inmemory_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/next-trace/scg-message-bus/adapters/inmemory"
	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

func envelope(id string) *cbus.Envelope {
	return &cbus.Envelope{Headers: cbus.Headers{cbus.HeaderMessageID: id}, Body: []byte("{}")}
}

func TestInmemory_SendAndPublish_Recordings(t *testing.T) {
	tr := inmemory.New()

	if err := tr.SendTo(t.Context(), "orders", envelope("1")); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := tr.PublishNative(t.Context(), "prices", envelope("2")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ds := tr.Deliveries()
	if len(ds) != 2 {
		t.Fatalf("want 2 deliveries, got %d", len(ds))
	}

	if ds[0].Address != "orders" || ds[1].Topic != "prices" {
		t.Fatalf("deliveries: %+v", ds)
	}

	if n := len(tr.SentTo("orders")); n != 1 {
		t.Fatalf("want 1 envelope for orders, got %d", n)
	}

	if tr.SupportsNativeTopicPublish("prices") {
		t.Fatalf("native publish must be opt-in")
	}

	tr.Reset()

	if n := len(tr.Deliveries()); n != 0 {
		t.Fatalf("reset left %d deliveries", n)
	}
}

func TestInmemory_RecordsCopies(t *testing.T) {
	tr := inmemory.New()
	env := envelope("1")

	if err := tr.SendTo(t.Context(), "q", env); err != nil {
		t.Fatalf("send: %v", err)
	}

	env.Headers[cbus.HeaderMessageID] = "changed"

	if got := tr.SentTo("q")[0].Headers[cbus.HeaderMessageID]; got != "1" {
		t.Fatalf("recorded envelope aliases the caller's: %q", got)
	}
}

func TestInmemory_Fail(t *testing.T) {
	boom := errors.New("boom")
	tr := &inmemory.Transport{Fail: func(address string) error {
		if address == "bad" {
			return boom
		}

		return nil
	}}

	if err := tr.SendTo(t.Context(), "bad", envelope("1")); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if err := tr.SendTo(t.Context(), "good", envelope("2")); err != nil {
		t.Fatalf("send: %v", err)
	}

	if n := len(tr.Deliveries()); n != 1 {
		t.Fatalf("want 1 delivery, got %d", n)
	}
}

func TestInmemory_ConcurrentSafety(t *testing.T) {
	tr := inmemory.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)

		send := func(_ int) {
			defer wg.Done()

			_ = tr.SendTo(t.Context(), "q", envelope("s"))
		}

		publish := func(_ int) {
			defer wg.Done()

			_ = tr.PublishNative(t.Context(), "t", envelope("p"))
		}

		go send(i)
		go publish(i)
	}

	wg.Wait()

	if n := len(tr.Deliveries()); n != 100 {
		t.Fatalf("deliveries=%d", n)
	}

	if n := len(tr.SentTo("q")); n != 50 {
		t.Fatalf("sends=%d", n)
	}
}
