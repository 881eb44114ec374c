package tests

import (
	"context"
	"testing"
	"time"
)

// TimeoutOption returns the time a test body is allowed to run.
type TimeoutOption func() time.Duration

// WithTimeout allows the body to run for d.
func WithTimeout(d time.Duration) TimeoutOption {
	return func() time.Duration {
		return d
	}
}

// WithContext allows the body to run until the deadline of ctx. Without a deadline the body
// is not allowed to run at all.
func WithContext(ctx context.Context) TimeoutOption {
	return func() time.Duration {
		deadline, ok := ctx.Deadline()
		if !ok {
			return 0
		}
		return time.Until(deadline)
	}
}

// TestOrTimeout runs fcn and fails the test if it does not return in time.
func TestOrTimeout(t *testing.T, option TimeoutOption, fcn func(T)) {
	t.Helper()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fcn(t)
	}()

	timer := time.NewTimer(option())
	defer timer.Stop()
	select {
	case <-timer.C:
		t.Fatalf("timeout at %s: %s", time.Now().Format(time.StampNano), t.Name())
	case <-finished:
	}
}
