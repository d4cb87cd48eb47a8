package dispatch

import (
	"context"
	"sync"
)

// task is one unit of work for a lane.
type task struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error // buffered, size 1
}

// taskQueue is a thread-safe FIFO queue for tasks.
//
// The queue is unbounded so Submit never blocks the caller; back pressure is
// the caller's job (Do waits for its own task).
type taskQueue struct {
	mu    sync.Mutex
	tasks []task
}

// newTaskQueue creates an empty task queue.
func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: make([]task, 0, 8),
	}
}

// Enqueue adds a task to the back of the queue.
func (q *taskQueue) Enqueue(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

// TryDequeue removes and returns the front task without blocking.
// Returns (task{}, false) if the queue is empty.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Nil out the slot so the closure and its captures can be collected.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
