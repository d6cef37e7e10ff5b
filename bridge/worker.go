package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/starbridge/host"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("worker stopped")

// workRequest represents a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func(*host.Env) (any, error)
	done chan workResult
}

// workResult holds the return value from a worker operation.
type workResult struct {
	value any
	err   error
}

// Worker runs cross-calls on one dedicated goroutine with its own context.
// Host code that must not block its own goroutine, or that wants every call
// to see the same attached context, queues work here.
type Worker struct {
	bridge   *Bridge
	env      *host.Env
	requests chan workRequest
	quit     chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(b *Bridge) *Worker {
	w := &Worker{
		bridge:   b,
		env:      b.rt.NewEnv(),
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine. After
// Stop, requests still queued are answered with ErrWorkerStopped.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			for {
				select {
				case req := <-w.requests:
					req.done <- workResult{err: ErrWorkerStopped}
				default:
					return
				}
			}
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func(*host.Env) (any, error)) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			result = workResult{err: fmt.Errorf("worker: %v", r)}
		}
	}()
	result.value, result.err = fn(w.env)
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. Panics in fn come back as errors. Work that was accepted before
// Stop either runs to completion or reports ErrWorkerStopped.
func (w *Worker) Do(fn func(env *host.Env) (any, error)) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil, ErrWorkerStopped
	}
	w.requests <- req
	w.mu.Unlock()

	result := <-req.done
	return result.value, result.err
}

// Exec runs script on the worker goroutine.
func (w *Worker) Exec(script string, locals, globals host.Object) error {
	_, err := w.Do(func(env *host.Env) (any, error) {
		return nil, w.bridge.Exec(env, script, locals, globals)
	})
	return err
}

// Env returns the worker's context.
func (w *Worker) Env() *host.Env { return w.env }

// Stop shuts down the worker goroutine. Work already running finishes.
// Calling Stop more than once is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.quit)
}
