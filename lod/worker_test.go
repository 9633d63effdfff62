package lod

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorker(t *testing.T) {
	t.Run("start and stop", func(t *testing.T) {
		var iterations atomic.Int32

		w := &worker{
			name: "test",
			iterate: func(ctx context.Context) error {
				iterations.Add(1)
				<-ctx.Done()
				return ctx.Err()
			},
		}

		w.start(context.Background())
		w.start(context.Background())

		require.Eventually(t, func() bool {
			return iterations.Load() == 1
		}, time.Second, time.Millisecond)

		require.True(t, w.stop(time.Second))
		require.True(t, w.stop(time.Second))
		require.Equal(t, int32(1), iterations.Load())
	})

	t.Run("iteration panic is recovered", func(t *testing.T) {
		var iterations atomic.Int32

		w := &worker{
			name: "test",
			iterate: func(ctx context.Context) error {
				if iterations.Add(1) == 1 {
					panic("boom")
				}
				<-ctx.Done()
				return ctx.Err()
			},
		}

		w.start(context.Background())
		require.Eventually(t, func() bool {
			return iterations.Load() == 2
		}, time.Second, time.Millisecond)
		require.True(t, w.stop(time.Second))
	})

	t.Run("iteration error does not stop the worker", func(t *testing.T) {
		var iterations atomic.Int32

		w := &worker{
			name: "test",
			iterate: func(ctx context.Context) error {
				if iterations.Add(1) <= 3 {
					return errors.New("iteration failed")
				}
				<-ctx.Done()
				return ctx.Err()
			},
		}

		w.start(context.Background())
		require.Eventually(t, func() bool {
			return iterations.Load() == 4
		}, time.Second, time.Millisecond)
		require.True(t, w.stop(time.Second))
	})

	t.Run("stop times out", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)

		w := &worker{
			name: "test",
			iterate: func(ctx context.Context) error {
				select {
				case started <- struct{}{}:
				default:
				}
				<-release
				return nil
			},
		}

		w.start(context.Background())
		<-started

		require.False(t, w.stop(time.Millisecond*10))
		close(release)
	})

	t.Run("canceled context stops the worker", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		w := &worker{
			name: "test",
			iterate: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}

		w.start(ctx)
		done := w.done
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			require.Fail(t, "worker did not return")
		}
		require.True(t, w.stop(time.Second))
	})
}
