package workers

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"runtime"
	"slices"
	"sync"
)

const (
	DefaultMaxSize                = 8
	DefaultMaxConsecutiveFailures = 3
)

// Options configures a Pool.
type Options struct {
	// Size is the number of executors. Zero means min(runtime.NumCPU(), MaxSize).
	Size int
	// MaxSize caps Size.
	MaxSize int
	// MaxConsecutiveFailures is the crash streak at which the pool stops
	// replacing crashed executors and shrinks instead.
	MaxConsecutiveFailures int
	Logger                 *log.Logger
}

// ExecutorInfo describes one live executor.
type ExecutorInfo struct {
	ID    string
	Ready bool
	Busy  bool
}

type execState struct {
	ready bool
	busy  uint64 // request id in flight, 0 when idle
}

type pendingTask struct {
	req    Request
	future *Future
	exec   *executor
	cancel context.CancelFunc
}

type queuedTask struct {
	req    Request
	future *Future
}

// Pool runs opaque tasks on a fixed set of executor goroutines.
// Submissions beyond the number of idle executors wait in a FIFO queue.
type Pool struct {
	handler Handler
	opts    Options
	logger  *log.Logger

	mu         sync.Mutex
	executors  map[*executor]*execState
	idle       []*executor
	queue      []queuedTask
	pending    map[uint64]*pendingTask
	nextID     uint64
	failures   int // consecutive crashes
	terminated bool

	events chan event
	stop   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool starts the executors and the collector goroutine.
func NewPool(h Handler, opts Options) *Pool {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Size <= 0 {
		opts.Size = runtime.NumCPU()
	}
	opts.Size = min(max(opts.Size, 1), opts.MaxSize)
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		handler:   h,
		opts:      opts,
		logger:    logger,
		executors: make(map[*executor]*execState, opts.Size),
		pending:   make(map[uint64]*pendingTask),
		events:    make(chan event, opts.Size*2),
		stop:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	p.mu.Lock()
	for _i := 0; _i < opts.Size; _i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	go p.collect()
	return p
}

// Submit assigns a fresh correlation id and dispatches the task to an idle
// executor, or queues it. The returned future settles exactly once.
func (p *Pool) Submit(typ string, payload any) *Future {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	f := newFuture(p.nextID)
	switch {
	case p.terminated:
		f.settle(nil, ErrTerminated)
		return f
	case len(p.executors) == 0:
		f.settle(nil, ErrNoExecutors)
		return f
	case typ == TypeReady:
		f.settle(nil, fmt.Errorf("%w: %q is reserved", ErrUnknownTask, typ))
		return f
	}

	q := queuedTask{
		req:    Request{Type: typ, RequestID: f.id, Payload: payload},
		future: f,
	}
	if len(p.idle) > 0 {
		e := p.idle[0]
		p.idle = p.idle[1:]
		p.dispatchLocked(e, q)
	} else {
		p.queue = append(p.queue, q)
	}
	return f
}

// Cancel rejects a task with ErrCancelled. A queued task is simply removed.
// An in-flight task's executor is retired and replaced at once; its late
// result is dropped. Cancel reports whether id was still outstanding.
func (p *Pool) Cancel(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pt, ok := p.pending[id]; ok {
		delete(p.pending, id)
		pt.cancel()
		pt.future.settle(nil, ErrCancelled)
		p.retireLocked(pt.exec)
		if !p.terminated {
			p.spawnLocked()
		}
		return true
	}
	for i, q := range p.queue {
		if q.req.RequestID == id {
			p.queue = slices.Delete(p.queue, i, i+1)
			q.future.settle(nil, ErrCancelled)
			return true
		}
	}
	return false
}

// Terminate rejects every pending and queued task with ErrTerminated, stops
// all executors and makes the pool permanently unusable.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	for id, pt := range p.pending {
		pt.cancel()
		pt.future.settle(nil, ErrTerminated)
		delete(p.pending, id)
	}
	for _, q := range p.queue {
		q.future.settle(nil, ErrTerminated)
	}
	p.queue = nil
	for e := range p.executors {
		p.retireLocked(e)
	}
	p.mu.Unlock()

	p.cancel()
	close(p.stop)
}

// Size reports the number of live executors. It only shrinks when crashes
// exhaust the replacement budget.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.executors)
}

// Busy reports how many executors are running a task.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// QueueLen reports how many tasks wait for an executor.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Terminated reports whether Terminate has been called.
func (p *Pool) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Executors lists the live executors.
func (p *Pool) Executors() []ExecutorInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ExecutorInfo, 0, len(p.executors))
	for e, st := range p.executors {
		out = append(out, ExecutorInfo{ID: e.id, Ready: st.ready, Busy: st.busy != 0})
	}
	slices.SortFunc(out, func(a, b ExecutorInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (p *Pool) spawnLocked() {
	e := newExecutor()
	p.executors[e] = &execState{}
	go e.run(p.handler, p.events, p.stop)
}

func (p *Pool) retireLocked(e *executor) {
	if _, ok := p.executors[e]; !ok {
		return
	}
	delete(p.executors, e)
	p.idle = slices.DeleteFunc(p.idle, func(x *executor) bool { return x == e })
	close(e.quit)
}

func (p *Pool) dispatchLocked(e *executor, q queuedTask) {
	ctx, cancel := context.WithCancel(p.ctx)
	p.pending[q.req.RequestID] = &pendingTask{
		req:    q.req,
		future: q.future,
		exec:   e,
		cancel: cancel,
	}
	p.executors[e].busy = q.req.RequestID
	// The inbox has room: an executor is only idle after its previous
	// task has been taken and answered.
	e.inbox <- task{ctx: ctx, req: q.req}
}

// drainLocked pairs idle executors with queued tasks in FIFO order.
func (p *Pool) drainLocked() {
	for len(p.idle) > 0 && len(p.queue) > 0 {
		e := p.idle[0]
		p.idle = p.idle[1:]
		q := p.queue[0]
		p.queue = p.queue[1:]
		p.dispatchLocked(e, q)
	}
}

// collect is the only reader of executor messages.
func (p *Pool) collect() {
	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) handle(ev event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, live := p.executors[ev.exec]
	if !live || p.terminated {
		// Retired executors may still answer; those ids were already consumed.
		return
	}

	switch {
	case ev.crash != nil:
		p.handleCrashLocked(ev)
	case ev.resp.Type == TypeReady:
		st.ready = true
		p.idle = append(p.idle, ev.exec)
		p.drainLocked()
	default:
		if pt, ok := p.pending[ev.resp.RequestID]; ok && pt.exec == ev.exec {
			delete(p.pending, ev.resp.RequestID)
			pt.cancel()
			pt.future.settle(ev.resp.Result, ev.resp.Err)
			if ev.resp.Err == nil {
				p.failures = 0
			}
		}
		st.busy = 0
		p.idle = append(p.idle, ev.exec)
		p.drainLocked()
	}
}

func (p *Pool) handleCrashLocked(ev event) {
	if pt, ok := p.pending[ev.resp.RequestID]; ok && pt.exec == ev.exec {
		delete(p.pending, ev.resp.RequestID)
		pt.cancel()
		pt.future.settle(nil, ev.crash)
	}
	delete(p.executors, ev.exec)
	p.idle = slices.DeleteFunc(p.idle, func(x *executor) bool { return x == ev.exec })
	p.failures++
	p.logger.Printf("workers: executor %s crashed (%d consecutive): %v\n%s", ev.exec.id, p.failures, ev.crash, ev.stack)

	if p.failures < p.opts.MaxConsecutiveFailures {
		p.spawnLocked()
		return
	}
	p.logger.Printf("workers: not replacing executor %s, capacity now %d", ev.exec.id, len(p.executors))
	if len(p.executors) == 0 {
		for _, q := range p.queue {
			q.future.settle(nil, ErrNoExecutors)
		}
		p.queue = nil
	}
}
