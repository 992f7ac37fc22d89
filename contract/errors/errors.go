package errors

import (
	"fmt"
	"strings"
)

// Error codes for the bus contracts. Keep stable; used across adapters, storages and bus.
const (
	ErrCodeRouting             = "servicebus.routing_failed"
	ErrCodeInvalidOperation    = "servicebus.invalid_operation"
	ErrCodeMissingHeader       = "servicebus.missing_header"
	ErrCodeTransportFailed     = "servicebus.transport_failed"
	ErrCodeSerializationFailed = "servicebus.serialization_failed"
	ErrCodeStorageFailed       = "servicebus.storage_failed"
	ErrCodeNotConfigured       = "servicebus.not_configured"
	ErrCodeClosed              = "servicebus.closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrRouting             = Code(ErrCodeRouting)
	ErrInvalidOperation    = Code(ErrCodeInvalidOperation)
	ErrMissingHeader       = Code(ErrCodeMissingHeader)
	ErrTransportFailed     = Code(ErrCodeTransportFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrStorageFailed       = Code(ErrCodeStorageFailed)
	ErrNotConfigured       = Code(ErrCodeNotConfigured)
	ErrClosed              = Code(ErrCodeClosed)
)

// AddressFailure is the outcome of one failed per-destination send.
type AddressFailure struct {
	Address string
	Err     error
}

// TransportError aggregates the per-destination failures of one logical operation.
// Destinations not listed were delivered to the transport successfully.
//
// errors.Is(err, ErrTransportFailed) holds for every TransportError, and errors.Is also
// matches any individual cause (for example context.Canceled).
type TransportError struct {
	Op       string
	Failures []AddressFailure
}

// Addresses lists the failed destinations in the order they were recorded.
func (e *TransportError) Addresses() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Address)
	}

	return out
}

func (e *TransportError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s: %s", e.Op, ErrCodeTransportFailed)

	for i, f := range e.Failures {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}

		fmt.Fprintf(&sb, "%s: %v", f.Address, f.Err)
	}

	return sb.String()
}

func (e *TransportError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrTransportFailed)

	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}

	return errs
}
