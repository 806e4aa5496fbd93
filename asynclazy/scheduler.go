package asynclazy

import "context"

// Scheduler runs a value factory as a joinable unit of work.  It is the integration
// point for thread-affine execution models (for example a UI loop), where the caller
// blocking for the value may be the very goroutine the factory needs to make progress.
//
// RunAsync must schedule fn on another goroutine and return without running it: it is
// invoked while the AsyncLazy start gate holds its internal lock, and fn blocks until
// that lock has been released.
type Scheduler interface {
	RunAsync(ctx context.Context, fn func(context.Context)) Unit
}

// Unit is an in-flight joinable unit of work produced by a Scheduler.
type Unit interface {
	// Join cooperatively waits for the unit's work to finish.  If the calling
	// goroutine is the one that pumps the scheduler, queued work runs inline on it
	// during the wait instead of deadlocking against the caller.  Join returns the
	// context's error if ctx is done first.
	Join(ctx context.Context) error

	// Done returns a channel that is closed once the unit's work has finished.
	Done() <-chan struct{}
}
