// Package keyed runs tasks serially per key and concurrently across keys.
package keyed

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("keyed executor is closed")

// Task is a unit of work.
type Task func()

// PanicHandler receives a recovered panic together with the task key.
type PanicHandler func(key string, err error)

// Executor runs tasks with the same key one at a time in submission order.
// Each key with pending work owns one goroutine, which exits once the key's
// queue is empty. Tasks with different keys never wait on each other.
type Executor struct {
	mu      sync.Mutex
	queues  map[string][]Task
	closed  bool
	wg      sync.WaitGroup
	onPanic PanicHandler
}

// Option configures an Executor.
type Option func(*Executor)

// WithPanicHandler sets the callback for panicking tasks. By default panics
// are recovered silently and the key's queue keeps draining.
func WithPanicHandler(fn PanicHandler) Option {
	return func(e *Executor) {
		e.onPanic = fn
	}
}

// New creates an executor.
func New(opts ...Option) *Executor {
	e := &Executor{queues: make(map[string][]Task)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit queues task under key. It never blocks on other tasks.
func (e *Executor) Submit(key string, task Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	// a present entry means a drainer for this key is running
	q, active := e.queues[key]
	e.queues[key] = append(q, task)
	if !active {
		e.wg.Add(1)
		go e.drain(key)
	}
	return nil
}

// Close stops accepting tasks and waits until every queued task has run.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Executor) drain(key string) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		q := e.queues[key]
		if len(q) == 0 {
			delete(e.queues, key)
			e.mu.Unlock()
			return
		}
		task := q[0]
		q[0] = nil
		e.queues[key] = q[1:]
		e.mu.Unlock()

		e.run(key, task)
	}
}

func (e *Executor) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil && e.onPanic != nil {
			e.onPanic(key, fmt.Errorf("task panicked: %v", r))
		}
	}()
	task()
}
