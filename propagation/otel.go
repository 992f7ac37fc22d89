// Package propagation bridges OpenTelemetry trace context into envelope headers.
package propagation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	cbus "github.com/next-trace/scg-message-bus/contract/bus"
)

// OTel injects and extracts trace context with an OpenTelemetry TextMapPropagator.
// The zero value uses otel.GetTextMapPropagator() at call time.
type OTel struct {
	Propagator propagation.TextMapPropagator
}

var (
	_ cbus.HeaderPropagator = OTel{}
	_ cbus.HeaderExtractor  = OTel{}
)

// NewOTel returns an OTel over p; nil defers to the global propagator.
func NewOTel(p propagation.TextMapPropagator) OTel { return OTel{Propagator: p} }

func (o OTel) Inject(ctx context.Context, headers map[string]string) {
	o.propagator().Inject(ctx, propagation.MapCarrier(headers))
}

func (o OTel) Extract(ctx context.Context, headers map[string]string) context.Context {
	return o.propagator().Extract(ctx, propagation.MapCarrier(headers))
}

func (o OTel) propagator() propagation.TextMapPropagator {
	if o.Propagator != nil {
		return o.Propagator
	}

	return otel.GetTextMapPropagator()
}
