package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/pkg/logger"
)

func TestQueue_WaitObservesCompletion(t *testing.T) {
	q := NewQueue(4, time.Second, logger.Discard())
	var done atomic.Int32

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Submit(context.Background(), "sync", func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.Equal(t, int32(10), done.Load())
	assert.Zero(t, q.Pending())
}

func TestQueue_WaitOnIdleQueueReturns(t *testing.T) {
	q := NewQueue(1, 0, logger.Discard())
	assert.NoError(t, q.Wait(context.Background()))
}

func TestQueue_TaskSurvivesCallerCancellation(t *testing.T) {
	q := NewQueue(1, time.Second, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	var sawCancel atomic.Bool
	release := make(chan struct{})
	require.NoError(t, q.Submit(ctx, "sync", func(taskCtx context.Context) error {
		<-release
		sawCancel.Store(taskCtx.Err() != nil)
		return nil
	}))

	cancel()
	close(release)
	require.NoError(t, q.Wait(context.Background()))
	assert.False(t, sawCancel.Load(), "request cancellation must not reach the task")
}

func TestQueue_WaitRespectsContext(t *testing.T) {
	q := NewQueue(1, 0, logger.Discard())
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, q.Submit(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	q := NewQueue(2, 0, logger.Discard())
	var running, peak atomic.Int32

	for i := 0; i < 8; i++ {
		require.NoError(t, q.Submit(context.Background(), "bounded", func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	require.NoError(t, q.Wait(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestQueue_FailuresAndPanicsAreContained(t *testing.T) {
	q := NewQueue(1, 0, logger.Discard())

	require.NoError(t, q.Submit(context.Background(), "fails", func(context.Context) error {
		return errors.New("upstream 503")
	}))
	require.NoError(t, q.Submit(context.Background(), "panics", func(context.Context) error {
		panic("nil map")
	}))

	assert.NoError(t, q.Wait(context.Background()))
}

func TestQueue_TimeoutBoundsTask(t *testing.T) {
	q := NewQueue(1, 10*time.Millisecond, logger.Discard())
	var err atomic.Value

	require.NoError(t, q.Submit(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		err.Store(ctx.Err())
		return ctx.Err()
	}))

	require.NoError(t, q.Wait(context.Background()))
	assert.ErrorIs(t, err.Load().(error), context.DeadlineExceeded)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue(1, 0, logger.Discard())
	require.NoError(t, q.Close(context.Background()))

	err := q.Submit(context.Background(), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
