package workers

import (
	"context"
	"errors"
	"fmt"
)

// TypeReady is reserved for the startup signal an executor sends before it
// accepts work. No request ever carries it.
const TypeReady = "ready"

var (
	// ErrTerminated rejects work that was pending or submitted after Terminate.
	ErrTerminated = errors.New("workers: pool terminated")
	// ErrCancelled rejects a task removed by Cancel.
	ErrCancelled = errors.New("workers: task cancelled")
	// ErrExecutorFailed rejects the in-flight task of a crashed executor.
	ErrExecutorFailed = errors.New("workers: executor failed")
	// ErrNoExecutors rejects work once every executor has been lost.
	ErrNoExecutors = errors.New("workers: no executors left")
	// ErrUnknownTask is returned by Mux for unregistered task types.
	ErrUnknownTask = errors.New("workers: unknown task type")
)

// Request is a unit of work sent to an executor.
type Request struct {
	Type      string
	RequestID uint64
	Payload   any
}

// Response is what an executor sends back for a request.
type Response struct {
	Type      string
	RequestID uint64
	Result    any
	Err       error
}

// Handler executes requests on an executor. Handlers run concurrently on
// several executors and must not share mutable state with their callers.
type Handler interface {
	Handle(ctx context.Context, req Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Mux routes requests to handlers by Type.
type Mux struct {
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Register installs h for a task type. Registering TypeReady panics.
func (m *Mux) Register(typ string, h Handler) {
	if typ == TypeReady {
		panic("workers: task type " + TypeReady + " is reserved")
	}
	m.handlers[typ] = h
}

// RegisterFunc is Register for plain functions.
func (m *Mux) RegisterFunc(typ string, f func(ctx context.Context, req Request) (any, error)) {
	m.Register(typ, HandlerFunc(f))
}

func (m *Mux) Handle(ctx context.Context, req Request) (any, error) {
	h, ok := m.handlers[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, req.Type)
	}
	return h.Handle(ctx, req)
}
