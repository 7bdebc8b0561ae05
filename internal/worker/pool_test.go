package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllJobsBeforeWaitReturns(t *testing.T) {
	pool := NewPool(3, logger.Discard())
	pool.Start()

	var done int64
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(context.Background(), "job", func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&done, 1)
			return nil
		}))
	}
	pool.Wait()

	assert.Equal(t, int64(20), atomic.LoadInt64(&done))
	stats := pool.GetStats()
	assert.Equal(t, int64(20), stats.TotalJobs)
	assert.Equal(t, int64(20), stats.CompletedJobs)
	assert.Equal(t, int32(0), stats.ActiveWorkers)
	assert.Equal(t, 3, stats.Workers)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2, logger.Discard())
	pool.Start()

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), "job", func(ctx context.Context) error {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}))
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, 2)
}

func TestPool_FailuresAndPanicsAreCounted(t *testing.T) {
	pool := NewPool(2, logger.Discard())
	pool.Start()

	require.NoError(t, pool.Submit(context.Background(), "ok", func(ctx context.Context) error { return nil }))
	require.NoError(t, pool.Submit(context.Background(), "err", func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, pool.Submit(context.Background(), "panic", func(ctx context.Context) error { panic("unexpected") }))
	pool.Wait()

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.CompletedJobs)
	assert.Equal(t, int64(2), stats.FailedJobs)
}

func TestPool_SubmitAfterWait(t *testing.T) {
	pool := NewPool(1, logger.Discard())
	pool.Start()
	pool.Wait()

	err := pool.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)

	// A second Wait is a no-op
	pool.Wait()
}

func TestNewPool_MinimumOneWorker(t *testing.T) {
	pool := NewPool(0, logger.Discard())
	assert.Equal(t, 1, pool.GetStats().Workers)
}
