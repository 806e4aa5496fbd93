// Package asyncassert provides assertion helpers for the outcomes of futures.
// It is test support only and is not used by any runtime code.
package asyncassert

import (
	"context"
	"testing"
	"time"

	"github.com/abevier/alv/futures"
	"github.com/stretchr/testify/require"
)

const resolveTimeout = 5 * time.Second

// Cancels asserts that the provided future finishes in the canceled state.
func Cancels[T any](t *testing.T, f *futures.Future[T]) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	_, err := f.Get(ctx)
	require.ErrorIs(t, err, futures.ErrCanceled)
}

// FailsWith asserts that the provided future finishes with a failure whose cause is
// the provided error, and that the failure is not a cancellation.
func FailsWith[T any](t *testing.T, f *futures.Future[T], want error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	_, err := f.Get(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, futures.ErrCanceled)
	require.ErrorIs(t, err, want)
}
