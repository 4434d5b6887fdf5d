// Package taskworker contains named serial task executors with delayed execution.
package taskworker

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type delayedTask struct {
	deadline time.Time
	fn       func()
	canceled atomic.Bool
	index    int
}

// Cancel prevents the task from running if it has not started yet.
func (t *delayedTask) Cancel() {
	t.canceled.Store(true)
}

// TaskHandle allows canceling a delayed task.
type TaskHandle interface {
	Cancel()
}

type delayedHeap []*delayedTask

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedHeap) Push(x any) {
	t := x.(*delayedTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Worker is a named serial executor.
// It owns a FIFO task queue and an ordered delayed-task list; tasks run
// one at a time on a dedicated goroutine. When the Worker is stopped,
// pending tasks are discarded and the in-flight one completes.
type Worker struct {
	// Name of the worker, used for logging.
	Name string

	// time.Now function.
	TimeNow func() time.Time

	Log zerolog.Logger

	mutex   sync.Mutex
	queue   []func()
	delayed delayedHeap
	stopped bool
	gid     atomic.Uint64
	notify  chan struct{}

	terminate chan struct{}
	done      chan struct{}
}

// Initialize initializes the Worker and starts its loop.
func (w *Worker) Initialize() {
	if w.TimeNow == nil {
		w.TimeNow = time.Now
	}

	w.notify = make(chan struct{}, 1)
	w.terminate = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()
}

// Stop requests termination and waits for the in-flight task to complete.
// Queued tasks are discarded.
func (w *Worker) Stop() {
	w.mutex.Lock()
	if w.stopped {
		w.mutex.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	w.mutex.Unlock()

	close(w.terminate)
	<-w.done
}

// Push appends a task to the queue.
// It returns false if the worker has been stopped.
func (w *Worker) Push(fn func()) bool {
	w.mutex.Lock()
	if w.stopped {
		w.mutex.Unlock()
		return false
	}
	w.queue = append(w.queue, fn)
	w.mutex.Unlock()

	w.wake()
	return true
}

// PushDelayed schedules a task to run after the given delay.
// The returned handle can cancel the task as long as it has not started.
func (w *Worker) PushDelayed(fn func(), delay time.Duration) TaskHandle {
	t := &delayedTask{
		deadline: w.TimeNow().Add(delay),
		fn:       fn,
	}

	w.mutex.Lock()
	if w.stopped {
		w.mutex.Unlock()
		t.canceled.Store(true)
		return t
	}
	heap.Push(&w.delayed, t)
	w.mutex.Unlock()

	w.wake()
	return t
}

// IsCurrent reports whether the caller is running on this worker.
func (w *Worker) IsCurrent() bool {
	return goroutineID() == w.gid.Load()
}

func (w *Worker) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *Worker) run() {
	defer close(w.done)

	w.gid.Store(goroutineID())

	for {
		task, wait, ok := w.next()
		if !ok {
			return
		}

		if task != nil {
			task()
			continue
		}

		var timer *time.Timer
		var timerCh <-chan time.Time
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timerCh = timer.C
		}

		select {
		case <-w.notify:
		case <-timerCh:
		case <-w.terminate:
			if timer != nil {
				timer.Stop()
			}
			return
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// next pops the first runnable task, or returns how long the loop may park.
// A negative wait means park until woken.
func (w *Worker) next() (func(), time.Duration, bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.stopped {
		return nil, 0, false
	}

	now := w.TimeNow()

	for len(w.delayed) > 0 {
		t := w.delayed[0]
		if t.canceled.Load() {
			heap.Pop(&w.delayed)
			continue
		}
		if t.deadline.After(now) {
			break
		}
		heap.Pop(&w.delayed)
		return t.fn, 0, true
	}

	if len(w.queue) > 0 {
		fn := w.queue[0]
		w.queue = w.queue[1:]
		return fn, 0, true
	}

	if len(w.delayed) > 0 {
		return nil, w.delayed[0].deadline.Sub(now), true
	}

	return nil, -1, true
}
