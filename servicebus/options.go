package servicebus

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

// DefaultParallelism bounds concurrent per-destination sends of one logical call.
const DefaultParallelism = 8

// BusOption configures a Bus instance.
type BusOption func(*Bus)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(s cbus.Serializer) BusOption {
	return func(b *Bus) {
		if s != nil {
			b.serializer = s
		}
	}
}

// WithPropagator sets the trace propagator. If p also implements bus.HeaderExtractor it is
// used on the inbound side by Handle.
func WithPropagator(p cbus.HeaderPropagator) BusOption {
	return func(b *Bus) {
		if p == nil {
			return
		}

		b.propagator = p
		if x, ok := p.(cbus.HeaderExtractor); ok {
			b.extractor = x
		}
	}
}

// WithParallelism bounds concurrent sends during fan-out. Values below 1 are ignored.
func WithParallelism(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.parallelism = n
		}
	}
}

// WithDistinctMessageIDs gives every destination of a logical call its own MessageId.
// By default all destinations share one.
func WithDistinctMessageIDs() BusOption {
	return func(b *Bus) { b.distinctIDs = true }
}

// WithOutgoingStep registers steps around every per-destination send.
func WithOutgoingStep(steps ...OutgoingStep) BusOption {
	return func(b *Bus) { b.steps = append(b.steps, steps...) }
}

// WithIDGenerator overrides the MessageId generator.
func WithIDGenerator(fn func() string) BusOption {
	return func(b *Bus) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// WithClock overrides the SentTime clock.
func WithClock(now func() time.Time) BusOption {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

func newMessageID() string { return uuid.Must(uuid.NewV7()).String() }
