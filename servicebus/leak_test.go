package servicebus_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain reports goroutines left behind by fan-out once all tests have run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
