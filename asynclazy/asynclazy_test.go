package asynclazy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abevier/alv/futures"
	"github.com/abevier/alv/internal/asyncassert"
	"github.com/abevier/alv/results"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTest = errors.New("test error")
)

func TestGetValue(t *testing.T) {
	req := require.New(t)

	l := New(Opts{}, func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	})

	req.False(l.IsValueCreated())
	req.False(l.IsValueFactoryCompleted())

	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(42, v)

	req.True(l.IsValueCreated())
	req.True(l.IsValueFactoryCompleted())
}

func TestNewRequiresFactory(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected a panic for a nil factory")
		}
	}()

	New[int](Opts{}, nil)
}

func TestAtMostOnce(t *testing.T) {
	req := require.New(t)

	var calls int32
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	})

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			v, err := l.Get(ctx)
			if err != nil {
				return err
			}
			if v != 42 {
				return errors.New("wrong value")
			}
			return nil
		})
	}

	req.NoError(g.Wait())
	req.Equal(int32(1), atomic.LoadInt32(&calls))

	// A second round after completion must return immediately without re-invoking
	// the factory.
	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(42, v)
	req.Equal(int32(1), atomic.LoadInt32(&calls))
}

func TestAllCallersShareTheSameFuture(t *testing.T) {
	req := require.New(t)

	var calls int32
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return 7, nil
	})

	fs := make([]*futures.Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		fs = append(fs, l.GetAsync(context.Background()))
	}

	rs, err := futures.ResolveAll(context.Background(), fs)
	req.NoError(err)
	req.Equal(int32(1), atomic.LoadInt32(&calls))

	for _, r := range rs {
		req.Equal(results.Success(7), r)
	}
}

func TestFactoryFailureIsSharedAndMemoized(t *testing.T) {
	req := require.New(t)

	var calls int32
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return 0, ErrTest
	})

	fs := make([]*futures.Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		fs = append(fs, l.GetAsync(context.Background()))
	}

	for _, f := range fs {
		asyncassert.FailsWith(t, f, ErrTest)
	}

	// The attempt completed even though it failed, and it is never retried.
	req.True(l.IsValueFactoryCompleted())
	req.Equal(int32(1), atomic.LoadInt32(&calls))

	_, err := l.Get(context.Background())
	req.ErrorIs(err, ErrTest)
	req.Equal(int32(1), atomic.LoadInt32(&calls))
}

func TestReentrantGetFails(t *testing.T) {
	req := require.New(t)

	var l *AsyncLazy[int]
	var nestedErr error

	l = New(Opts{}, func(ctx context.Context) (int, error) {
		_, nestedErr = l.Get(ctx)
		return 1, nil
	})

	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(1, v)
	req.ErrorIs(nestedErr, ErrValueFactoryReentrancy)
}

func TestReentrantGetAfterSuspensionFails(t *testing.T) {
	req := require.New(t)

	var l *AsyncLazy[int]
	var nestedErr error

	l = New(Opts{}, func(ctx context.Context) (int, error) {
		// The marker must survive a suspension inside the factory.
		time.Sleep(10 * time.Millisecond)

		nested := l.GetAsync(ctx)
		_, nestedErr = nested.Get(context.Background())
		return 1, nil
	})

	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(1, v)
	req.ErrorIs(nestedErr, ErrValueFactoryReentrancy)
}

func TestReentrantGetFromSpawnedWorkFails(t *testing.T) {
	req := require.New(t)

	var l *AsyncLazy[int]
	nestedErr := make(chan error, 1)

	l = New(Opts{}, func(ctx context.Context) (int, error) {
		// Work spawned within the factory's extent inherits the marker through
		// the factory's context.
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := l.Get(ctx)
			nestedErr <- err
		}()
		<-done
		return 1, nil
	})

	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(1, v)
	req.ErrorIs(<-nestedErr, ErrValueFactoryReentrancy)
}

func TestSelfReferenceAfterCompletionIsAllowed(t *testing.T) {
	req := require.New(t)

	var factoryCtx context.Context
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		factoryCtx = ctx
		return 42, nil
	})

	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(42, v)

	// Once the value is done, a call from the factory's own extent is harmless.
	v, err = l.Get(factoryCtx)
	req.NoError(err)
	req.Equal(42, v)
}

func TestNestedInstancesAreIndependent(t *testing.T) {
	req := require.New(t)

	inner := New(Opts{}, func(ctx context.Context) (int, error) {
		return 2, nil
	})

	outer := New(Opts{}, func(ctx context.Context) (int, error) {
		v, err := inner.Get(ctx)
		return v * 10, err
	})

	v, err := outer.Get(context.Background())
	req.NoError(err)
	req.Equal(20, v)
}

func TestIndependentInstanceDuringFactoryIsNotReentrant(t *testing.T) {
	req := require.New(t)

	other := New(Opts{}, func(ctx context.Context) (int, error) {
		return 5, nil
	})

	var nestedErr error
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		// An unrelated instance must not be mistaken for this one while this
		// factory is still in flight; each instance has its own marker key.
		v, err := other.Get(ctx)
		nestedErr = err
		return v + 1, err
	})

	v, err := l.Get(context.Background())
	req.NoError(err)
	req.Equal(6, v)
	req.NoError(nestedErr)
}

func TestNestedCycleIsDetected(t *testing.T) {
	req := require.New(t)

	var a, b *AsyncLazy[int]

	a = New(Opts{}, func(ctx context.Context) (int, error) {
		return b.Get(ctx)
	})
	b = New(Opts{}, func(ctx context.Context) (int, error) {
		return a.Get(ctx)
	})

	_, err := a.Get(context.Background())
	req.ErrorIs(err, ErrValueFactoryReentrancy)
}

func TestViewCancellationIsolation(t *testing.T) {
	req := require.New(t)

	l := New(Opts{}, func(ctx context.Context) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 42, nil
	})

	a := l.GetAsync(context.Background())
	b := l.GetAsync(context.Background())

	// Caller A loses interest; caller B and the computation are unaffected.
	a.Cancel()
	asyncassert.Cancels(t, a)

	v, err := b.Get(context.Background())
	req.NoError(err)
	req.Equal(42, v)
	req.True(l.IsValueFactoryCompleted())
}

func TestGetAsyncWithCancel(t *testing.T) {
	req := require.New(t)

	release := make(chan struct{})
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	a := l.GetAsyncWithCancel(ctx)
	b := l.GetAsync(context.Background())

	cancel()
	asyncassert.Cancels(t, a)

	close(release)

	v, err := b.Get(context.Background())
	req.NoError(err)
	req.Equal(42, v)
}

func TestQueryOperations(t *testing.T) {
	req := require.New(t)

	release := make(chan struct{})
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})

	req.False(l.IsValueCreated())
	req.False(l.IsValueFactoryCompleted())

	f := l.GetAsync(context.Background())

	req.True(l.IsValueCreated())
	req.False(l.IsValueFactoryCompleted())

	close(release)

	_, err := f.Get(context.Background())
	req.NoError(err)

	req.True(l.IsValueCreated())
	req.True(l.IsValueFactoryCompleted())
}

func TestString(t *testing.T) {
	req := require.New(t)

	release := make(chan struct{})
	l := New(Opts{}, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})

	req.Equal("LazyValueNotCreated", l.String())

	f := l.GetAsync(context.Background())
	req.Equal("LazyValueNotCreated", l.String())

	close(release)

	_, err := f.Get(context.Background())
	req.NoError(err)
	req.Equal("42", l.String())

	lf := New(Opts{}, func(ctx context.Context) (int, error) {
		return 0, ErrTest
	})

	_, err = lf.Get(context.Background())
	req.ErrorIs(err, ErrTest)
	req.Equal("LazyValueFaulted", lf.String())
}
