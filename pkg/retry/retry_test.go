package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), "write", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), "write", func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeFile, "locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), "resolve", func() error {
		calls++
		return errors.New(errors.ErrorTypeData, "unresolvable foreign key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), "read", func() error {
		calls++
		return errors.New(errors.ErrorTypeFile, "still locked")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(3), "read", func() error {
		return errors.New(errors.ErrorTypeFile, "locked")
	})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}
