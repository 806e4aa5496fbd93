package asynclazy

import "errors"

var (
	// ErrValueFactoryReentrancy is reported when a value factory calls back into its
	// own AsyncLazy instance before the value has been produced.  This is a
	// programming error: the nested call could never complete because it would be
	// waiting on the very factory it was called from.
	ErrValueFactoryReentrancy = errors.New("value factory reentered its own AsyncLazy before completing")
)
