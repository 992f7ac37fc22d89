package errors_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	berr "github.com/next-trace/scg-message-bus/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := berr.Code(berr.ErrCodeTransportFailed)
	if e.Error() != berr.ErrCodeTransportFailed {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{berr.ErrRouting, berr.ErrCodeRouting},
		{berr.ErrInvalidOperation, berr.ErrCodeInvalidOperation},
		{berr.ErrMissingHeader, berr.ErrCodeMissingHeader},
		{berr.ErrTransportFailed, berr.ErrCodeTransportFailed},
		{berr.ErrSerializationFailed, berr.ErrCodeSerializationFailed},
		{berr.ErrStorageFailed, berr.ErrCodeStorageFailed},
		{berr.ErrNotConfigured, berr.ErrCodeNotConfigured},
		{berr.ErrClosed, berr.ErrCodeClosed},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, berr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestTransportError_IsAsAndMessage(t *testing.T) {
	boom := errors.New("boom")
	te := &berr.TransportError{
		Op: "publish invoices",
		Failures: []berr.AddressFailure{
			{Address: "x", Err: boom},
			{Address: "y", Err: context.Canceled},
		},
	}

	var err error = te

	if !errors.Is(err, berr.ErrTransportFailed) {
		t.Fatalf("want ErrTransportFailed")
	}

	if !errors.Is(err, boom) || !errors.Is(err, context.Canceled) {
		t.Fatalf("causes must be reachable: %v", err)
	}

	var got *berr.TransportError
	if !errors.As(err, &got) || len(got.Failures) != 2 {
		t.Fatalf("errors.As failed: %v", err)
	}

	if a := got.Addresses(); len(a) != 2 || a[0] != "x" || a[1] != "y" {
		t.Fatalf("addresses=%v", a)
	}

	msg := err.Error()
	if !strings.HasPrefix(msg, "publish invoices: servicebus.transport_failed") ||
		!strings.Contains(msg, "x: boom") {
		t.Fatalf("message=%q", msg)
	}
}
