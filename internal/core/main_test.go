package core_test

import (
	"testing"

	"go.uber.org/goleak"
)

// Hook calls run on their own goroutine; none may outlive a resolution.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
