package servicebus

import (
	"context"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

type incomingKey struct{}

// WithIncomingHeaders returns a context that carries the headers of the inbound message
// being handled. Bus.Handle calls it for you; custom receive loops call it once per message
// before invoking the handler. The headers are copied.
func WithIncomingHeaders(ctx context.Context, headers cbus.Headers) context.Context {
	return context.WithValue(ctx, incomingKey{}, headers.Clone())
}

// IncomingHeaders returns a copy of the headers of the message currently being handled,
// or false outside a handler.
func IncomingHeaders(ctx context.Context) (cbus.Headers, bool) {
	h, ok := incoming(ctx)
	if !ok {
		return nil, false
	}

	return h.Clone(), true
}

func incoming(ctx context.Context) (cbus.Headers, bool) {
	h, ok := ctx.Value(incomingKey{}).(cbus.Headers)
	return h, ok
}
