package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Submit and Do after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// lane is the single consumer for one key.
type lane struct {
	key   string
	queue *taskQueue
}

// Dispatcher runs submitted tasks one at a time per key.
//
// Thread-safety model:
//   - Submit, Do, Lanes: safe from any goroutine
//   - Tasks of one key never overlap; tasks of different keys may
//
// A task must not Do on its own key: it would wait on itself.
type Dispatcher struct {
	mu      sync.Mutex
	lanes   map[string]*lane
	stopped bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for task panics and lane lifecycle.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher with no lanes.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lanes:  make(map[string]*lane),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues fn on key's lane and returns a channel that receives fn's
// result once it has run. The task runs even if ctx is later cancelled.
func (d *Dispatcher) Submit(ctx context.Context, key string, fn func(context.Context) error) (<-chan error, error) {
	t := task{
		ctx:    context.WithoutCancel(ctx),
		fn:     fn,
		result: make(chan error, 1),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, ErrStopped
	}

	l, ok := d.lanes[key]
	if !ok {
		l = &lane{key: key, queue: newTaskQueue()}
		d.lanes[key] = l
		d.wg.Add(1)
		go d.runLane(l)
	}
	l.queue.Enqueue(t)

	return t.result, nil
}

// Do submits fn on key's lane and waits for it. If ctx ends first, Do
// returns ctx.Err() and fn still runs to completion in the background.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	result, err := d.Submit(ctx, key, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lanes returns the number of keys with queued or running work.
func (d *Dispatcher) Lanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

// Stop rejects new work and waits for every queued task to finish.
// Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.wg.Wait()
}

// runLane drains l until its queue is empty, then retires the lane.
//
// The emptiness check and the map delete happen under d.mu, the same lock
// Submit holds while enqueueing, so no task can land on a retired lane.
func (d *Dispatcher) runLane(l *lane) {
	defer d.wg.Done()

	for {
		t, ok := l.queue.TryDequeue()
		if ok {
			d.execute(l.key, t)
			continue
		}

		d.mu.Lock()
		if l.queue.Len() == 0 {
			delete(d.lanes, l.key)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

// execute runs one task, converting a panic into the task's error so the
// lane survives.
func (d *Dispatcher) execute(key string, t task) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task on lane %s panicked: %v", key, r)
			d.logger.Error("dispatch task panicked", "lane", key, "panic", r)
		}
		t.result <- err
	}()
	err = t.fn(t.ctx)
}
