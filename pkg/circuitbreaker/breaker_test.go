package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func trip(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		err := cb.Execute(context.Background(), func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
}

func TestClosedPassesThrough(t *testing.T) {
	cb := New("test", Config{})

	err := cb.Execute(context.Background(), func() error { return nil })

	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	trip(t, cb, 3)

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3})

	trip(t, cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	trip(t, cb, 2)

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New("test", Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
	})

	trip(t, cb, 2)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New("test", Config{
		FailureThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
	})

	trip(t, cb, 2)
	time.Sleep(15 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)

	err = cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestHalfOpenLimitsInFlightRequests(t *testing.T) {
	cb := New("test", Config{
		FailureThreshold: 1,
		HalfOpenRequests: 1,
		SuccessThreshold: 100,
		OpenTimeout:      10 * time.Millisecond,
	})

	trip(t, cb, 1)
	time.Sleep(15 * time.Millisecond)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func() error {
			<-release
			return nil
		})
	}()

	// Wait for the probe request to occupy the half-open slot.
	require.Eventually(t, func() bool {
		err := cb.Execute(context.Background(), func() error { return nil })
		return errors.Is(err, ErrTooManyRequests)
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-done)
}

func TestExecutePropagatesPanicsAsFailures(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 1, OpenTimeout: time.Minute})

	assert.Panics(t, func() {
		cb.Execute(context.Background(), func() error { panic("kaboom") })
	})

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
