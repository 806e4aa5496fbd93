// Package mainthread provides a scheduler modeled on a single-threaded event loop:
// callbacks posted to it only ever run on whichever goroutine is currently pumping the
// loop, the way UI frameworks confine work to a main thread.
//
// The Scheduler implements the asynclazy Scheduler contract.  Work started through
// RunAsync is joinable: a goroutine that owns the loop can wait for the work to finish
// while callbacks the work posted back to the loop keep running inline, which is what
// makes the wait deadlock-free.
package mainthread

import (
	"context"

	"github.com/abevier/alv/asynclazy"
)

// Scheduler queues callbacks for a pumping goroutine.  Create one with New, hand it to
// the code that needs to post main-thread work, and call Pump from the goroutine that
// should own the loop.
type Scheduler struct {
	workChan chan func()
}

// New creates a Scheduler with the provided options.
func New(opts Opts) *Scheduler {
	opts.validate()

	return &Scheduler{
		workChan: make(chan func(), opts.MaxQueueDepth),
	}
}

// Post queues fn to run on the pumping goroutine.  It blocks if the queue is full.
func (s *Scheduler) Post(fn func()) {
	s.workChan <- fn
}

// Pump runs queued callbacks on the calling goroutine until the provided context is
// done or the scheduler is closed.  The calling goroutine is the loop's owner for the
// duration of the call.
func (s *Scheduler) Pump(ctx context.Context) {
	for {
		select {
		case fn, ok := <-s.workChan:
			if !ok {
				return
			}
			fn()

		case <-ctx.Done():
			return
		}
	}
}

// RunAsync starts fn on its own goroutine and returns a joinable unit tracking it.
// fn is never run inline on the caller.
func (s *Scheduler) RunAsync(ctx context.Context, fn func(context.Context)) asynclazy.Unit {
	u := &Unit{
		scheduler: s,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(u.done)
		fn(ctx)
	}()

	return u
}

// WARNING If this is called twice or Post is called after calling Close it will panic
func (s *Scheduler) Close() {
	close(s.workChan)
}

// Unit is an in-flight piece of work started by RunAsync.
type Unit struct {
	scheduler *Scheduler
	done      chan struct{}
}

// Join waits for the unit's work to finish while pumping the scheduler's queue on the
// calling goroutine.  Callbacks the work posted to the loop therefore make progress
// even when the joining goroutine is the loop's owner.  Join returns the context's
// error if ctx is done before the work finishes.
func (u *Unit) Join(ctx context.Context) error {
	work := u.scheduler.workChan

	for {
		select {
		case <-u.done:
			return nil

		case <-ctx.Done():
			return ctx.Err()

		case fn, ok := <-work:
			if !ok {
				// The scheduler was closed; keep waiting without pumping.
				work = nil
				continue
			}
			fn()
		}
	}
}

// Done returns a channel that is closed once the unit's work has finished.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}
