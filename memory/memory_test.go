package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

type testCmd struct{ N int }

type testEvt struct{ N int }

func TestNewMemoryBus_BasicFlow(t *testing.T) {
	got := make(chan any, 4)

	b, cleanup := New(func(ctx context.Context, msg any) error {
		got <- msg
		return nil
	})
	defer cleanup()

	ctx := context.Background()

	wait := func() any {
		t.Helper()

		select {
		case m := <-got:
			return m
		case <-time.After(2 * time.Second):
			t.Fatalf("no delivery")
			return nil
		}
	}

	// Send to self
	if err := b.SendLocal(ctx, testCmd{N: 1}, nil); err != nil {
		t.Fatalf("send local: %v", err)
	}

	if m, ok := wait().(testCmd); !ok || m.N != 1 {
		t.Fatalf("unexpected message: %#v", m)
	}

	// Publish without subscribers is a no-op
	if err := b.Publish(ctx, "events", testEvt{N: 0}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Subscribe and publish
	if err := b.Subscribe(ctx, "events"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := b.Publish(ctx, "events", testEvt{N: 2}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if m, ok := wait().(testEvt); !ok || m.N != 2 {
		t.Fatalf("unexpected event: %#v", m)
	}

	// No router configured
	if err := b.Send(ctx, testCmd{}, nil); !errors.Is(err, berr.ErrRouting) {
		t.Fatalf("expected ErrRouting, got %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := b.SendLocal(ctx, testCmd{}, nil); !errors.Is(err, berr.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
