// Package parallel implements the cooperative intra-op thread pool:
// parallel_for splits an index range into
// grain-size-limited chunks, the calling goroutine drains one chunk
// itself, and nested calls collapse to serial execution to avoid
// deadlocking the pool. Go has no thread-local storage, so "is this
// goroutine already inside a parallel_for" is tracked the idiomatic Go
// way: as a value threaded through context.Context along the same call
// chain that would recurse into a nested call.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type nestedKey struct{}

// Engine owns one process-wide (or per-Net, if callers want isolation)
// intra-op pool plus a separate interop pool for detached tasks.
type Engine struct {
	numThreads   atomic.Int32
	interopLimit atomic.Int32
	interopSem   *semaphore.Weighted
}

// NewEngine builds an Engine sized to numThreads, or GOMAXPROCS(0) if
// numThreads <= 0 (hardware concurrency by default).
func NewEngine(numThreads int) *Engine {
	if numThreads <= 0 {
		numThreads = runtime.GOMAXPROCS(0)
	}
	e := &Engine{}
	e.numThreads.Store(int32(numThreads))
	e.interopLimit.Store(int32(numThreads))
	e.interopSem = semaphore.NewWeighted(int64(numThreads))
	return e
}

// SetNumThreads resizes the intra-op pool. A non-positive value is
// ignored.
func (e *Engine) SetNumThreads(n int) {
	if n > 0 {
		e.numThreads.Store(int32(n))
	}
}

// NumThreads reports the current intra-op pool size.
func (e *Engine) NumThreads() int {
	return int(e.numThreads.Load())
}

// InParallelRegion reports whether ctx was derived from a call already
// inside a ParallelFor invocation.
func InParallelRegion(ctx context.Context) bool {
	v, _ := ctx.Value(nestedKey{}).(bool)
	return v
}

func withNested(ctx context.Context) context.Context {
	return context.WithValue(ctx, nestedKey{}, true)
}

type engineKey struct{}

// WithEngine attaches eng to ctx so downstream layer Forward/
// ForwardInplace calls can reach the pool their executor is bound to
// without every Layer method gaining an *Engine parameter.
func WithEngine(ctx context.Context, eng *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, eng)
}

// EngineFromContext retrieves the Engine WithEngine attached, or a
// fresh default-sized Engine if none was attached (so a layer exercised
// in isolation, e.g. in a unit test, still works).
func EngineFromContext(ctx context.Context) *Engine {
	if eng, ok := ctx.Value(engineKey{}).(*Engine); ok {
		return eng
	}
	return NewEngine(0)
}

func divup(x, y int64) int64 {
	return (x + y - 1) / y
}

// ParallelFor partitions [begin,end) into chunks of at least grainSize
// elements (only the final chunk may hold fewer, the remainder) and
// runs f over each chunk. Each index in [begin,end) is
// visited exactly once across all f invocations; invocations never
// overlap; the calling goroutine drains one chunk itself; a failing
// chunk aborts the remaining chunks and the first observed error is
// returned. N==0 (begin==end) never invokes f. f receives a context
// already marked as "inside a parallel region", so a ParallelFor call
// made from within f collapses to serial execution on the calling
// goroutine instead of recursing into the pool.
func (e *Engine) ParallelFor(ctx context.Context, begin, end, grainSize int64, f func(ctx context.Context, begin, end int64) error) error {
	if end <= begin {
		return nil
	}
	if grainSize <= 0 {
		grainSize = 1
	}
	if InParallelRegion(ctx) {
		return runSerially(ctx, begin, end, grainSize, f)
	}

	total := end - begin
	numThreads := int64(e.NumThreads())
	if numThreads < 1 {
		numThreads = 1
	}
	chunks := divup(total, grainSize)
	if chunks > numThreads {
		chunks = numThreads
	}
	if chunks < 1 {
		chunks = 1
	}
	chunkSize := divup(total, chunks)
	if chunkSize < grainSize {
		chunkSize = grainSize
	}

	type slab struct{ begin, end int64 }
	slabs := make([]slab, 0, chunks)
	for b := begin; b < end; b += chunkSize {
		s := b + chunkSize
		if s > end {
			s = end
		}
		slabs = append(slabs, slab{b, s})
	}

	nestedCtx := withNested(ctx)
	g, gctx := errgroup.WithContext(nestedCtx)
	sem := semaphore.NewWeighted(numThreads)

	// The calling goroutine drains the last slab itself instead of
	// handing every slab to the pool.
	mine := slabs[len(slabs)-1]
	rest := slabs[:len(slabs)-1]

	for _, s := range rest {
		s := s
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return f(gctx, s.begin, s.end)
		})
	}

	errMine := f(gctx, mine.begin, mine.end)
	errRest := g.Wait()
	if errMine != nil {
		return errMine
	}
	return errRest
}

func runSerially(ctx context.Context, begin, end, grainSize int64, f func(ctx context.Context, begin, end int64) error) error {
	for b := begin; b < end; b += grainSize {
		e := b + grainSize
		if e > end {
			e = end
		}
		if err := f(ctx, b, e); err != nil {
			return err
		}
	}
	return nil
}

// ThreadIDGuard scopes a temporary override of the intra-op pool size
// to the current logical call, restoring the previous value on Close
// (use with defer). It mirrors otter::ThreadIdGuard; Go's lack of
// thread-local storage means the override is process-wide for the
// Engine rather than truly per-OS-thread, which is sufficient since a
// single Net's forward pass is single-threaded at the executor level.
type ThreadIDGuard struct {
	eng *Engine
	old int32
}

// NewThreadIDGuard overrides the pool size until Close is called.
func (e *Engine) NewThreadIDGuard(newNumThreads int) *ThreadIDGuard {
	old := e.numThreads.Load()
	e.SetNumThreads(newNumThreads)
	return &ThreadIDGuard{eng: e, old: old}
}

// Close restores the pool size the guard overrode. Safe to call via
// defer on every exit path, including after a failure.
func (g *ThreadIDGuard) Close() {
	if g == nil || g.eng == nil {
		return
	}
	g.eng.numThreads.Store(g.old)
}

// SetNumInteropThreads resizes the interop pool used by IntraopLaunch.
func (e *Engine) SetNumInteropThreads(n int) {
	if n > 0 {
		e.interopLimit.Store(int32(n))
		e.interopSem = semaphore.NewWeighted(int64(n))
	}
}

// NumInteropThreads reports the interop pool size.
func (e *Engine) NumInteropThreads() int {
	return int(e.interopLimit.Load())
}

// IntraopLaunch runs fn as a detached task on the interop pool,
// distinct from the intra-op pool ParallelFor uses. The call blocks
// only long enough to acquire a pool slot; fn itself runs
// asynchronously.
func (e *Engine) IntraopLaunch(ctx context.Context, fn func()) error {
	if err := e.interopSem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer e.interopSem.Release(1)
		fn()
	}()
	return nil
}

// Info describes the pool configuration for diagnostics/logging.
func (e *Engine) Info() string {
	return fmt.Sprintf("intra-op threads: %d, interop threads: %d", e.NumThreads(), e.NumInteropThreads())
}
