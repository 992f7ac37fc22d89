package servicebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

// SendFunc performs one per-destination handoff to the transport.
type SendFunc func(ctx context.Context, address string, env *cbus.Envelope) error

// OutgoingStep wraps per-destination sends. Steps are executed in registration order.
type OutgoingStep func(next SendFunc) SendFunc

// outgoing describes one logical send before it is fanned out.
type outgoing struct {
	op      string
	msg     any
	intent  string
	headers cbus.Headers // caller-supplied
	stamped cbus.Headers // facade-specific defaults (Topic, InReplyTo)
}

// dispatch serializes out once, stamps headers and hands one envelope per address to final.
// Per-address failures are aggregated into a *berr.TransportError; successful sends stand.
func (b *Bus) dispatch(ctx context.Context, out *outgoing, addresses []string, final SendFunc) error {
	if len(addresses) == 0 {
		return nil
	}

	base, body, err := b.prepare(ctx, out)
	if err != nil {
		return err
	}

	send := b.chain(final)
	var sharedID string
	if !b.distinctIDs {
		sharedID = b.newID()
	}

	errs := make([]error, len(addresses))

	b.logger.DebugContext(ctx, "dispatch",
		slog.String("op", out.op),
		slog.Int("destinations", len(addresses)),
	)

	if len(addresses) == 1 {
		errs[0] = b.sendOne(ctx, send, addresses[0], b.envelope(base, body, sharedID))
	} else {
		var g errgroup.Group
		g.SetLimit(b.parallelism)

		for i, addr := range addresses {
			// a canceled context stops sends that have not started yet
			if err := ctx.Err(); err != nil {
				errs[i] = err
				continue
			}

			env := b.envelope(base, body, sharedID)

			g.Go(func() error {
				errs[i] = b.sendOne(ctx, send, addr, env)
				return nil
			})
		}

		_ = g.Wait()
	}

	return b.collect(ctx, out.op, addresses, errs)
}

// prepare serializes the message and builds the headers shared by every destination.
func (b *Bus) prepare(ctx context.Context, out *outgoing) (cbus.Headers, []byte, error) {
	base := cbus.Headers{}

	body, err := b.serializer.Serialize(ctx, out.msg, base)
	if err != nil {
		if !errors.Is(err, berr.ErrSerializationFailed) {
			err = errors.Join(berr.ErrSerializationFailed, err)
		}

		return nil, nil, fmt.Errorf("%s: %w", out.op, err)
	}

	base[cbus.HeaderReturnAddress] = b.address
	base[cbus.HeaderSenderAddress] = b.address
	base[cbus.HeaderIntent] = out.intent
	base[cbus.HeaderSentTime] = b.now().UTC().Format(time.RFC3339Nano)

	if in, ok := incoming(ctx); ok {
		if corr, ok := in.Lookup(cbus.HeaderCorrelationID); ok {
			base[cbus.HeaderCorrelationID] = corr
		} else if id, ok := in.Lookup(cbus.HeaderMessageID); ok {
			base[cbus.HeaderCorrelationID] = id
		}
	}

	for k, v := range out.stamped {
		base[k] = v
	}

	for k, v := range out.headers {
		if k == cbus.HeaderMessageID {
			b.logger.DebugContext(ctx, "ignoring caller-supplied message id", slog.String("op", out.op))
			continue
		}

		if k == cbus.HeaderReturnAddress && v == "" {
			b.logger.DebugContext(ctx, "ignoring empty caller return address", slog.String("op", out.op))
			continue
		}

		base[k] = v
	}

	b.propagator.Inject(ctx, base)

	return base, body, nil
}

// envelope gives each destination its own headers. The MessageId is either shared by the
// whole logical call or fresh per destination, depending on WithDistinctMessageIDs.
func (b *Bus) envelope(base cbus.Headers, body []byte, sharedID string) *cbus.Envelope {
	h := base.Clone()

	if _, ok := h.Lookup(cbus.HeaderMessageID); !ok {
		if b.distinctIDs {
			h[cbus.HeaderMessageID] = b.newID()
		} else {
			h[cbus.HeaderMessageID] = sharedID
		}
	}

	if _, ok := h.Lookup(cbus.HeaderCorrelationID); !ok {
		h[cbus.HeaderCorrelationID] = h[cbus.HeaderMessageID]
	}

	return &cbus.Envelope{Headers: h, Body: body}
}

func (b *Bus) sendOne(ctx context.Context, send SendFunc, address string, env *cbus.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return send(ctx, address, env)
}

func (b *Bus) chain(final SendFunc) SendFunc {
	// Build chain so the first registered step runs first
	for i := len(b.steps) - 1; i >= 0; i-- {
		final = b.steps[i](final)
	}

	return final
}

func (b *Bus) collect(ctx context.Context, op string, addresses []string, errs []error) error {
	var failures []berr.AddressFailure

	for i, err := range errs {
		if err != nil {
			failures = append(failures, berr.AddressFailure{Address: addresses[i], Err: err})
		}
	}

	if len(failures) == 0 {
		return nil
	}

	te := &berr.TransportError{Op: op, Failures: failures}

	b.logger.WarnContext(ctx, "transport handoff failed",
		slog.String("op", op),
		slog.Int("failed", len(failures)),
		slog.Int("destinations", len(addresses)),
		slog.Any("addresses", te.Addresses()),
	)

	return te
}
