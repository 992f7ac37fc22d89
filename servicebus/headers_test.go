package servicebus_test

import (
	"testing"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	"github.com/next-trace/scg-message-bus/servicebus"
)

func TestIncomingHeaders_AreCopies(t *testing.T) {
	src := cbus.Headers{cbus.HeaderMessageID: "1"}
	ctx := servicebus.WithIncomingHeaders(t.Context(), src)

	src[cbus.HeaderMessageID] = "changed"

	h, ok := servicebus.IncomingHeaders(ctx)
	if !ok || h[cbus.HeaderMessageID] != "1" {
		t.Fatalf("scoped headers leaked caller mutation: %v", h)
	}

	h[cbus.HeaderMessageID] = "mutated"

	again, _ := servicebus.IncomingHeaders(ctx)
	if again[cbus.HeaderMessageID] != "1" {
		t.Fatalf("returned headers alias the context: %v", again)
	}

	if _, ok := servicebus.IncomingHeaders(t.Context()); ok {
		t.Fatalf("plain context must not carry headers")
	}
}
