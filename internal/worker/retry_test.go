package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

func TestRetryPolicyDo(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("SucceedsAfterFailures", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		}, nil)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("GivesUp", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("down")
		}, nil)
		assert.EqualError(t, err, "down")
		assert.Equal(t, 4, calls)
	})

	t.Run("NotRetryable", func(t *testing.T) {
		permanent := errors.New("denied")
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return permanent
		}, func(err error) bool { return !errors.Is(err, permanent) })
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextDone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryPolicy{MaxRetries: 10, InitialDelay: time.Hour}
		calls := 0
		err := slow.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("x")
		}, nil)
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
