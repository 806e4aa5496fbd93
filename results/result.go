// Package results provides a simple value-or-error pair used to carry the outcome of an
// asynchronous computation through channels and slices.
package results

type Result[R any] struct {
	Val R
	Err error
}

func New[R any](val R, err error) Result[R] {
	return Result[R]{Val: val, Err: err}
}

func Success[T any](val T) Result[T] {
	return Result[T]{Val: val}
}

func Failure[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Unwrap returns the value and error held by this Result as an ordinary Go return pair.
func (r Result[R]) Unwrap() (R, error) {
	return r.Val, r.Err
}
