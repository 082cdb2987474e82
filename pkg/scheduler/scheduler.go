package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Work[T any] func(ctx context.Context) (T, error)

type Result[T any] struct {
	Data T
	Err  error
}

// Future holds the pending result of a work item.
type Future[T any] struct {
	c      chan T
	cancel context.CancelFunc
}

func newFuture[T any](cancel context.CancelFunc) *Future[T] {
	return &Future[T]{c: make(chan T, 1), cancel: cancel}
}

// C returns the channel the result is delivered on. It receives exactly one value.
func (f *Future[T]) C() <-chan T {
	return f.c
}

// Stop cancels the context of the work item.
func (f *Future[T]) Stop() {
	f.cancel()
}

type workRequest struct {
	fn     Work[any]
	future *Future[Result[any]]
	ctx    context.Context
}

// Scheduler runs work items on a fixed number of workers in FIFO order.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []workRequest
	closed bool

	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
}

func NewScheduler(nbWorkers int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)

	for range max(nbWorkers, 1) {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// AddWork queues w. Work added after Close resolves with context.Canceled
// without running.
func (s *Scheduler) AddWork(w Work[any]) *Future[Result[any]] {
	ctx, cancel := context.WithCancel(s.mainCtx)
	future := newFuture[Result[any]](cancel)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		cancel()
		future.c <- Result[any]{Err: context.Canceled}
		return future
	}

	s.queue = append(s.queue, workRequest{fn: w, future: future, ctx: ctx})
	s.cond.Signal()
	return future
}

// Close cancels all work, resolves queued items with context.Canceled and
// waits for the running ones to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mainCancel()
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		r := s.queue[0]
		s.queue = s.queue[1:]
		closed := s.closed
		s.mu.Unlock()

		if closed {
			r.future.c <- Result[any]{Err: context.Canceled}
			r.future.cancel()
			continue
		}

		r.future.c <- run(r)
		r.future.cancel()
	}
}

func run(r workRequest) (result Result[any]) {
	defer func() {
		if p := recover(); p != nil {
			zap.S().Named("scheduler").Errorw("worker panicked", "panic", p)
			result = Result[any]{Err: fmt.Errorf("worker panicked: %v", p)}
		}
	}()

	v, err := r.fn(r.ctx)
	return Result[any]{Data: v, Err: err}
}
