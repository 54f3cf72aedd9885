// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Timeout bounds WithinTimeout.
const Timeout = 5 * time.Second

// ErrTimeout is returned by WithinTimeout when nothing arrives in time.
var ErrTimeout = errors.New("timed out waiting for result")

// WithinTimeout reads one error from ch, or returns ErrTimeout if none
// arrives within Timeout.
func WithinTimeout(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(Timeout):
		return ErrTimeout
	}
}

// NoErrorN performs require.NoError on multiple errors
func NoErrorN(t *testing.T, errs ...error) {
	for _, err := range errs {
		require.NoError(t, err)
	}
}

// WaitFor calls cond every tick until it returns true, failing t if that
// does not happen within the given duration.
func WaitFor(t *testing.T, within, tick time.Duration, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			require.FailNow(t, "condition not met in time", msgAndArgs...)
		}
		time.Sleep(tick)
	}
}
