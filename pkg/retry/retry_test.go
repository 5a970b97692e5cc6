package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int

	res := Do(context.Background(), Fixed(5, time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_Exhausted(t *testing.T) {
	cause := errors.New("refused")
	res := Do(context.Background(), Fixed(3, time.Millisecond), func(ctx context.Context, attempt int) error {
		return cause
	}, nil)

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, ErrExhausted))
	assert.True(t, errors.Is(res.Err, cause))
	assert.Equal(t, 3, res.Attempts)
}

func TestDo_PermanentStops(t *testing.T) {
	cause := errors.New("bad credentials")
	calls := 0
	res := Do(context.Background(), Fixed(5, time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(cause)
	}, nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, cause, res.Err)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Do(ctx, Fixed(3, time.Second), func(ctx context.Context, attempt int) error {
		return errors.New("fail")
	}, nil)

	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, 1, res.Attempts)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{Interval: time.Second, Multiplier: 2, MaxInterval: 3 * time.Second}
	assert.Equal(t, 2*time.Second, p.next(time.Second))
	assert.Equal(t, 3*time.Second, p.next(2*time.Second))
	assert.Equal(t, time.Second, Fixed(2, time.Second).next(time.Second))
}
