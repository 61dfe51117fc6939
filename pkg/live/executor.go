// Package live publishes state across goroutines: executors that run tasks in
// order on one goroutine, and observable values bound to an executor.
package live

import (
	"sync"
	"sync/atomic"
	"time"
)

// An Executor runs submitted tasks. Where and when is up to the implementation.
type Executor interface {
	Execute(task func())
}

// Inline runs each task immediately, on the calling goroutine.
type Inline struct{}

func (Inline) Execute(task func()) { task() }

// A Worker runs tasks one at a time, in submission order, on a goroutine it
// owns. The queue is unbounded, so Execute never blocks the caller.
type Worker struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func NewWorker(name string) *Worker {
	w := &Worker{name: name, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

func (w *Worker) Name() string { return w.name }

// Execute queues the task. Tasks submitted after Close are dropped.
func (w *Worker) Execute(task func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.queue = append(w.queue, task)
	w.cond.Signal()
}

// Do runs the task on the worker and waits for it to finish. It returns false
// if the worker is closed. Calling Do from a task running on w deadlocks.
func (w *Worker) Do(task func()) bool {
	ran := make(chan struct{})

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, func() {
		defer close(ran)
		task()
	})
	w.cond.Signal()
	w.mu.Unlock()

	<-ran
	return true
}

// ExecuteAfter queues the task once d has elapsed. The returned Timer cancels it.
func (w *Worker) ExecuteAfter(d time.Duration, task func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		w.Execute(func() {
			if tm.stopped.Load() {
				return
			}
			tm.fired.Store(true)
			task()
		})
	})
	return tm
}

// Close stops accepting tasks, lets the queued ones run, and waits for the
// goroutine to exit. It must not be called from a task running on w.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		task := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		task()
	}
}

// A Timer is a delayed task on a Worker.
type Timer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

// Stop cancels the delayed task. Once Stop has returned on the worker's own
// goroutine, the task will not run. It reports whether this call prevented
// the task from running.
func (tm *Timer) Stop() bool {
	if tm == nil {
		return false
	}
	wasStopped := tm.stopped.Swap(true)
	tm.t.Stop()
	return !wasStopped && !tm.fired.Load()
}

// ManualExecutor holds tasks until the test driving it decides to run them.
type ManualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *ManualExecutor) Execute(task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

func (m *ManualExecutor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunAt removes the i'th pending task and runs it.
func (m *ManualExecutor) RunAt(i int) bool {
	m.mu.Lock()
	if i < 0 || i >= len(m.tasks) {
		m.mu.Unlock()
		return false
	}
	task := m.tasks[i]
	m.tasks = append(m.tasks[:i:i], m.tasks[i+1:]...)
	m.mu.Unlock()

	task()
	return true
}

func (m *ManualExecutor) RunNext() bool { return m.RunAt(0) }

func (m *ManualExecutor) RunLast() bool { return m.RunAt(m.Pending() - 1) }

// RunAll runs tasks in FIFO order until none are pending, including tasks
// queued by the tasks themselves. It returns how many ran.
func (m *ManualExecutor) RunAll() int {
	n := 0
	for m.RunNext() {
		n++
	}
	return n
}
