package workers

import (
	"context"
	"sync"
)

// Future is the eventual result of a submitted task. It settles exactly once.
type Future struct {
	id   uint64
	done chan struct{}
	once sync.Once

	result any
	err    error
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the correlation id assigned at submission.
func (f *Future) ID() uint64 { return f.id }

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the settled value. It is only meaningful after Done is closed.
func (f *Future) Result() (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
		return nil, nil
	}
}

// Await blocks until the future settles or ctx ends.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle resolves or rejects the future. Later calls are ignored.
func (f *Future) settle(result any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}
