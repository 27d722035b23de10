package beckhoff

import "context"

// Future is the deferred result of a client operation. It settles exactly
// once, with either a value or an error.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends. A cancelled wait does
// not cancel the operation itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the future settles.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

type callResult[T any] struct {
	value T
	err   error
}

// call turns one callback-style adsprotocol operation into a blocking call.
func call[T any](start func(cb func(T, error))) (T, error) {
	ch := make(chan callResult[T], 1)
	start(func(v T, err error) {
		ch <- callResult[T]{value: v, err: err}
	})
	r := <-ch
	return r.value, r.err
}

// callErr is call for operations that only report an error.
func callErr(start func(cb func(error))) error {
	ch := make(chan error, 1)
	start(func(err error) { ch <- err })
	return <-ch
}
