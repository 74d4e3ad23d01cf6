package workers

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
)

// executor is one worker goroutine. It runs a single task at a time and
// reports back to the pool only through the events channel.
type executor struct {
	id    string
	inbox chan task
	quit  chan struct{} // closed when the pool retires this executor
}

type task struct {
	ctx context.Context
	req Request
}

// event is a message from an executor to the pool's collector.
type event struct {
	exec  *executor
	resp  Response
	crash error
	stack []byte
}

func newExecutor() *executor {
	return &executor{
		id:    uuid.NewString(),
		inbox: make(chan task, 1),
		quit:  make(chan struct{}),
	}
}

func (e *executor) run(h Handler, events chan<- event, stop <-chan struct{}) {
	if !e.send(events, stop, event{exec: e, resp: Response{Type: TypeReady}}) {
		return
	}
	for {
		select {
		case <-stop:
			return
		case <-e.quit:
			return
		case t := <-e.inbox:
			resp, stack, crash := e.execute(h, t)
			if crash != nil {
				e.send(events, stop, event{exec: e, resp: resp, crash: crash, stack: stack})
				return
			}
			if !e.send(events, stop, event{exec: e, resp: resp}) {
				return
			}
		}
	}
}

// execute runs one task. A panic in the handler is reported as a crash and
// ends this executor.
func (e *executor) execute(h Handler, t task) (resp Response, stack []byte, crash error) {
	resp = Response{Type: t.req.Type, RequestID: t.req.RequestID}
	defer func() {
		if r := recover(); r != nil {
			crash = fmt.Errorf("%w: %v", ErrExecutorFailed, r)
			stack = debug.Stack()
		}
	}()
	resp.Result, resp.Err = h.Handle(t.ctx, t.req)
	return resp, nil, nil
}

func (e *executor) send(events chan<- event, stop <-chan struct{}, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-stop:
		return false
	}
}
