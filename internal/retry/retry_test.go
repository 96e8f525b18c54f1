package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond}
}

func TestDo(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		var retried []int
		p := fastPolicy(3)
		p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

		got, err := Do(context.Background(), p, Always, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errTransient
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := DoVoid(context.Background(), fastPolicy(2), nil, func(context.Context) error {
			calls++
			return errTransient
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		stop := func(error) Action { return Stop }
		err := DoVoid(context.Background(), fastPolicy(5), stop, func(context.Context) error {
			calls++
			return errTransient
		})
		var perm *PermanentError
		require.ErrorAs(t, err, &perm)
		assert.Equal(t, 1, calls)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := Policy{MaxAttempts: 3, InitialBackoff: time.Hour}
		err := DoVoid(ctx, p, Always, func(context.Context) error { return errTransient })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rejects zero attempts", func(t *testing.T) {
		err := DoVoid(context.Background(), Policy{}, Always, func(context.Context) error { return nil })
		assert.Error(t, err)
	})
}
