package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0

	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0

	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastConfig()
	cfg.Permanent = []error{permanent}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoRecognizesWrappedPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastConfig()
	cfg.Permanent = []error{permanent}

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.Join(errors.New("context"), permanent)
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, Config{Attempts: 5, BaseDelay: time.Minute}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0

	value, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", value)
}
