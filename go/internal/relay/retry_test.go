package relay

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Schedule(t *testing.T) {
	fc := clockwork.NewFakeClock()
	start := fc.Now()
	p := RetryPolicy{MaxAttempts: 4, InitialInterval: 100 * time.Millisecond, MaxInterval: 300 * time.Millisecond, Multiplier: 2}

	var offsets []time.Duration
	done := make(chan struct{})
	var attempts int
	var err error
	go func() {
		defer close(done)
		attempts, err = p.run(context.Background(), fc, func(int) error {
			offsets = append(offsets, fc.Since(start))
			return errors.New("unavailable")
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, step := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond} {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		fc.Advance(step)
	}
	<-done

	assert.Equal(t, 4, attempts)
	assert.EqualError(t, err, "unavailable")
	assert.Equal(t, []time.Duration{0, 100 * time.Millisecond, 300 * time.Millisecond, 600 * time.Millisecond}, offsets)
}

func TestRetryPolicy_NoRetry(t *testing.T) {
	calls := 0
	attempts, err := NoRetry().run(context.Background(), clockwork.NewFakeClock(), func(int) error {
		calls++
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Permanent(t *testing.T) {
	cause := errors.New("rejected")
	attempts, err := DefaultRetryPolicy().run(context.Background(), clockwork.NewFakeClock(), func(int) error {
		return backoff.Permanent(cause)
	})
	assert.Equal(t, 1, attempts)
	assert.Same(t, cause, err)
}

func TestRetryPolicy_ContextCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := clockwork.NewFakeClock()

	done := make(chan error, 1)
	go func() {
		_, err := DefaultRetryPolicy().run(ctx, fc, func(int) error { return errors.New("fail") })
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStatusError_Permanent(t *testing.T) {
	cases := map[int]bool{
		http.StatusBadRequest:          true,
		http.StatusForbidden:           true,
		http.StatusTooManyRequests:     false,
		http.StatusRequestTimeout:      false,
		http.StatusInternalServerError: false,
		http.StatusBadGateway:          false,
	}
	for code, want := range cases {
		assert.Equal(t, want, (&StatusError{Code: code}).Permanent(), "status %d", code)
	}
}
