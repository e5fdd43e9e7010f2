package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParallelForCoversEveryIndexExactlyOnce(t *testing.T) {
	e := NewEngine(4)
	const n = 997
	var hits [n]int32

	err := e.ParallelFor(context.Background(), 0, n, 17, func(ctx context.Context, b, end int64) error {
		for i := b; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
		return nil
	})
	require.NoError(t, err)
	for i, h := range hits {
		require.Equalf(t, int32(1), h, "index %d visited %d times", i, h)
	}
}

func TestParallelForEmptyRangeNeverCallsF(t *testing.T) {
	e := NewEngine(4)
	called := false
	err := e.ParallelFor(context.Background(), 5, 5, 10, func(ctx context.Context, b, end int64) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestParallelForPropagatesFirstError(t *testing.T) {
	e := NewEngine(4)
	sentinel := errors.New("boom")
	err := e.ParallelFor(context.Background(), 0, 100, 1, func(ctx context.Context, b, end int64) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestNestedParallelForRunsSerially(t *testing.T) {
	e := NewEngine(4)
	var maxNesting int32
	var depth int32

	err := e.ParallelFor(context.Background(), 0, 8, 2, func(ctx context.Context, b, end int64) error {
		atomic.AddInt32(&depth, 1)
		defer atomic.AddInt32(&depth, -1)
		d := atomic.LoadInt32(&depth)
		for {
			cur := atomic.LoadInt32(&maxNesting)
			if d <= cur || atomic.CompareAndSwapInt32(&maxNesting, cur, d) {
				break
			}
		}
		// A nested call must not recurse into the pool again: it should
		// run on this same goroutine.
		require.True(t, InParallelRegion(ctx))
		return e.ParallelFor(ctx, 0, 4, 1, func(context.Context, int64, int64) error { return nil })
	})
	require.NoError(t, err)
}

func TestThreadIDGuardRestoresOnClose(t *testing.T) {
	e := NewEngine(4)
	require.Equal(t, 4, e.NumThreads())
	func() {
		g := e.NewThreadIDGuard(1)
		defer g.Close()
		require.Equal(t, 1, e.NumThreads())
	}()
	require.Equal(t, 4, e.NumThreads())
}

func TestIntraopLaunchRunsDetached(t *testing.T) {
	e := NewEngine(2)
	done := make(chan struct{})
	err := e.IntraopLaunch(context.Background(), func() { close(done) })
	require.NoError(t, err)
	<-done
}
