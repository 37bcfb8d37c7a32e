package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	from := time.Date(2024, 12, 25, 8, 30, 0, 0, time.UTC)

	t.Run("should compute the next daily activation", func(t *testing.T) {
		next, err := NextRun("0 9 * * *", "UTC", from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 25, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("should roll over to the next day", func(t *testing.T) {
		next, err := NextRun("0 8 * * *", "UTC", from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 26, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("should accept descriptors", func(t *testing.T) {
		next, err := NextRun("@hourly", "UTC", from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 12, 25, 9, 0, 0, 0, time.UTC), next)

		next, err = NextRun("@every 15m", "", from)
		require.NoError(t, err)
		assert.Equal(t, from.Add(15*time.Minute), next)
	})

	t.Run("should reject invalid expressions", func(t *testing.T) {
		_, err := NextRun("not a cron", "", from)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")

		_, err = NextRun("", "", from)
		assert.Error(t, err)
	})

	t.Run("should reject unknown timezones", func(t *testing.T) {
		_, err := NextRun("0 9 * * *", "Mars/Olympus", from)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})
}

func TestRunner(t *testing.T) {
	t.Run("should validate on construction", func(t *testing.T) {
		_, err := New("61 * * * *", func(context.Context) error { return nil })
		assert.Error(t, err)

		_, err = New("@hourly", nil)
		assert.Error(t, err)
	})

	t.Run("should run immediately and stop at the run limit", func(t *testing.T) {
		var calls atomic.Int32
		r, err := New("@hourly", func(context.Context) error {
			calls.Add(1)
			return nil
		}, WithImmediate(), WithMaxRuns(1))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, r.Run(ctx))

		assert.Equal(t, int32(1), calls.Load())
		st := r.State()
		assert.Equal(t, 1, st.Runs)
		assert.Equal(t, StatusOK, st.LastStatus)
		assert.False(t, st.NextRun.IsZero())
		assert.NoError(t, ctx.Err(), "runner should stop before the deadline")
	})

	t.Run("should record failures and recover panics", func(t *testing.T) {
		r, err := New("@hourly", func(context.Context) error {
			return errors.New("boom")
		}, WithImmediate(), WithMaxRuns(1))
		require.NoError(t, err)
		require.NoError(t, r.Run(context.Background()))

		st := r.State()
		assert.Equal(t, StatusError, st.LastStatus)
		assert.Equal(t, "boom", st.LastError)
		assert.Equal(t, 1, st.ConsecutiveErrors)

		p, err := New("@hourly", func(context.Context) error {
			panic("kaboom")
		}, WithImmediate(), WithMaxRuns(1))
		require.NoError(t, err)
		require.NoError(t, p.Run(context.Background()))
		assert.Contains(t, p.State().LastError, "kaboom")
	})

	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		r, err := New("@hourly", func(context.Context) error { return nil })
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("runner did not stop")
		}
		assert.Equal(t, 0, r.State().Runs)
	})

	t.Run("should skip activations while a run is in flight", func(t *testing.T) {
		release := make(chan struct{})
		r, err := New("@hourly", func(context.Context) error {
			<-release
			return nil
		}, WithMaxRuns(1))
		require.NoError(t, err)

		started := make(chan bool, 1)
		go func() { started <- r.fire(context.Background()) }()
		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.running
		}, time.Second, 5*time.Millisecond)

		assert.False(t, r.fire(context.Background()))
		assert.Equal(t, 1, r.State().Skipped)

		close(release)
		assert.True(t, <-started)
	})
}
