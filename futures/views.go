package futures

import "context"

// NonCancellationPropagating returns a new Future that mirrors the outcome of the provided source future.
// Completing, failing or canceling the returned view has no effect on the source.  This is useful when a
// single underlying future is shared by many consumers and no individual consumer may be allowed to
// complete it for everyone else.
func NonCancellationPropagating[T any](src *Future[T]) *Future[T] {
	view := New[T]()

	go func() {
		v, err := src.Get(context.Background())
		if err != nil {
			view.Fail(err)
			return
		}
		view.Complete(v)
	}()

	return view
}

// WithCancellation returns a new Future that resolves with the outcome of the provided source future, or
// is canceled as soon as the provided context is done, whichever happens first.  The source future is
// never affected by the cancellation and other consumers of it still observe its real outcome.
func WithCancellation[T any](src *Future[T], ctx context.Context) *Future[T] {
	view := New[T]()

	go func() {
		select {
		case <-src.Done():
			v, err := src.Get(context.Background())
			if err != nil {
				view.Fail(err)
				return
			}
			view.Complete(v)

		case <-ctx.Done():
			view.Cancel()
		}
	}()

	return view
}
