// Package asynclazy provides a thread-safe, lazily and asynchronously evaluated value.
// The value factory is invoked at most once per AsyncLazy instance no matter how many
// callers race to request the value, and every caller observes the same outcome.
//
// A factory that calls back into its own still-running AsyncLazy is detected and
// rejected with ErrValueFactoryReentrancy instead of hanging, including when the
// callback happens after the factory has suspended or handed work to another
// goroutine. Detection relies on a marker carried by the context the factory
// receives, so factories must pass that context along to any nested calls.
//
// When a Scheduler is supplied, the factory runs as a joinable unit of work so that
// a caller blocking a scheduler-owned goroutine for the result cannot deadlock
// against factory code that itself needs that goroutine.
package asynclazy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/abevier/alv/futures"
)

// ValueFactory produces the lazily evaluated value. It is invoked at most once per
// AsyncLazy instance.
//
// The provided context carries the reentrancy marker for the factory's dynamic extent
// and must be passed to any nested calls the factory makes. It is detached from the
// cancellation of whichever caller happened to start the factory, because the computed
// value is shared by every caller, but it inherits that caller's values so markers
// chain through nested AsyncLazy instances.
type ValueFactory[T any] func(ctx context.Context) (T, error)

// reentrancyMarker is deliberately non-zero-sized: Go gives all zero-size allocations
// the same address, which would alias the marker keys of unrelated instances.
type reentrancyMarker struct{ _ byte }

// AsyncLazy is a lazily computed, memoized asynchronous value.
// Instances must be created with New.
type AsyncLazy[T any] struct {
	mu sync.Mutex

	// factory holds the value factory until some caller becomes the starter and
	// takes it, atomically clearing the slot.
	factory atomic.Pointer[ValueFactory[T]]

	// value is the future produced by the (possibly wrapped) factory.  It is written
	// exactly once, under mu, and read lock-free everywhere else.
	value atomic.Pointer[futures.Future[T]]

	// scheduler and unit are dropped once the value is done, purely to release
	// whatever capacity they retain.  Guarded by mu.
	scheduler Scheduler
	unit      Unit

	// markerKey is this instance's context key for the reentrancy marker.  Keys are
	// unique per instance so that nested AsyncLazy values chain markers instead of
	// colliding on one.
	markerKey *reentrancyMarker
}

// New creates an AsyncLazy that will invoke the provided factory at most once to
// produce its value.  A nil factory panics.
//
// If opts carries a Scheduler, the factory is run as a joinable unit of work on it,
// which allows Get to be called safely from the scheduler's own pumping goroutine.
func New[T any](opts Opts, factory ValueFactory[T]) *AsyncLazy[T] {
	if factory == nil {
		panic("asynclazy factory must not be nil")
	}

	l := &AsyncLazy[T]{
		scheduler: opts.Scheduler,
		markerKey: &reentrancyMarker{},
	}
	l.factory.Store(&factory)
	return l
}

// GetAsync returns a future that resolves with the lazily computed value, starting the
// factory if no caller has started it yet.
//
// The returned future is a view private to the caller: completing or canceling it has
// no effect on the shared computation or on futures returned to other callers.
//
// The provided context is only used to detect reentrant calls made from within the
// factory's own extent; such calls receive a future that has already failed with
// ErrValueFactoryReentrancy.  Cancellation of ctx does not affect the returned future;
// use GetAsyncWithCancel for that behavior.
func (l *AsyncLazy[T]) GetAsync(ctx context.Context) *futures.Future[T] {
	value := l.value.Load()

	if !(value != nil && value.IsDone()) && ctx.Value(l.markerKey) != nil {
		// The factory's own extent is asking for a value that cannot exist until
		// the factory returns.  Once the value is done the same call is harmless
		// and allowed.
		return futures.Failed[T](ErrValueFactoryReentrancy)
	}

	if value == nil {
		var resume chan struct{}

		l.mu.Lock()
		// Only one caller can observe a nil value here.  It takes the factory and
		// becomes the starter; callers racing with it block on the mutex and then
		// converge on the now-populated cell.
		if l.value.Load() == nil {
			resume = make(chan struct{})
			factory := l.factory.Swap(nil)

			cell := futures.New[T]()
			factoryCtx := context.WithValue(context.WithoutCancel(ctx), l.markerKey, l.markerKey)

			run := func(fctx context.Context) {
				// Hold the factory until the start gate's lock has been released.
				<-resume

				v, err := (*factory)(fctx)
				if err != nil {
					cell.Fail(err)
					return
				}
				cell.Complete(v)
			}

			if l.scheduler != nil {
				// Running as a joinable unit allows a later caller to block the
				// scheduler's own goroutine for the result without deadlocking.
				l.unit = l.scheduler.RunAsync(factoryCtx, run)
				go l.reclaimWhenDone(cell)
			} else {
				go run(factoryCtx)
			}

			l.value.Store(cell)
		}
		l.mu.Unlock()

		// Let the factory actually run, now that the lock is free.  The factory can
		// therefore never observe this instance's mutex held by its starter.
		if resume != nil {
			close(resume)
		}

		value = l.value.Load()
	}

	return futures.NonCancellationPropagating(value)
}

// GetAsyncWithCancel behaves like GetAsync, but the returned future is additionally
// canceled as soon as the provided context is done, if the value has not been produced
// by then.  The shared computation itself keeps running and is never canceled.
func (l *AsyncLazy[T]) GetAsyncWithCancel(ctx context.Context) *futures.Future[T] {
	return futures.WithCancellation(l.GetAsync(ctx), ctx)
}

// Get returns the lazily computed value, blocking until the factory has produced it or
// the provided context is done.
//
// If the factory is running on a Scheduler, Get cooperatively joins the factory's unit
// of work first, so work the factory queued for the caller's goroutine can run inline
// during the wait instead of deadlocking.
func (l *AsyncLazy[T]) Get(ctx context.Context) (T, error) {
	f := l.GetAsync(ctx)

	// A future that is already done needs no join.  This includes the pre-failed
	// future handed to a reentrant caller, which must never wait on the very unit
	// of work it was called from.
	if value := l.value.Load(); !f.IsDone() && value != nil && !value.IsDone() {
		l.mu.Lock()
		unit := l.unit
		l.mu.Unlock()

		if unit != nil {
			if err := unit.Join(ctx); err != nil {
				return *new(T), err
			}
		}
	}

	return f.Get(ctx)
}

// IsValueCreated returns true once some caller has started the value factory.  It does
// not indicate that the factory has finished; see IsValueFactoryCompleted for that.
func (l *AsyncLazy[T]) IsValueCreated() bool {
	return l.factory.Load() == nil
}

// IsValueFactoryCompleted returns true once the value factory has run to completion,
// whether it produced a value or failed.
func (l *AsyncLazy[T]) IsValueFactoryCompleted() bool {
	value := l.value.Load()
	return value != nil && value.IsDone()
}

// String renders the computed value when it is available, or a fixed placeholder
// describing the uncreated and faulted states.
func (l *AsyncLazy[T]) String() string {
	value := l.value.Load()
	if value == nil || !value.IsDone() {
		return "LazyValueNotCreated"
	}

	v, err := value.Get(context.Background())
	if err != nil {
		return "LazyValueFaulted"
	}
	return fmt.Sprintf("%v", v)
}

// reclaimWhenDone drops the scheduler and unit references once the value is done.
// Absence of either is treated everywhere as "already reclaimed", so racing with
// readers is safe.
func (l *AsyncLazy[T]) reclaimWhenDone(cell *futures.Future[T]) {
	<-cell.Done()

	l.mu.Lock()
	l.scheduler = nil
	l.unit = nil
	l.mu.Unlock()
}
