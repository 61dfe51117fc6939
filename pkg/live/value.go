package live

import (
	"sync"
	"sync/atomic"
)

type observer[T any] struct {
	id uint64
	fn func(T)
}

// A Value is an observable cell: one writer, any number of readers. It is
// bound to the executor that owns publication; Set must be called there,
// while Post may be called from anywhere and marshals the write onto it.
// New observers are replayed the last value.
type Value[T any] struct {
	exec Executor

	mu        sync.Mutex
	val       T
	has       bool
	observers []observer[T]
	nextID    uint64
}

func NewValue[T any](exec Executor) *Value[T] {
	return &Value[T]{exec: exec}
}

func NewValueOf[T any](exec Executor, initial T) *Value[T] {
	return &Value[T]{exec: exec, val: initial, has: true}
}

// Get returns the current value, and whether one has ever been set.
func (v *Value[T]) Get() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.has
}

// Value returns the current value, or the zero value.
func (v *Value[T]) Value() T {
	val, _ := v.Get()
	return val
}

func (v *Value[T]) IsSet() bool {
	_, ok := v.Get()
	return ok
}

// Set stores x and notifies observers on the calling goroutine.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	v.val = x
	v.has = true
	obs := append([]observer[T](nil), v.observers...)
	v.mu.Unlock()

	for _, o := range obs {
		o.fn(x)
	}
}

// Post hands the write to the owning executor.
func (v *Value[T]) Post(x T) {
	v.exec.Execute(func() { v.Set(x) })
}

// Observe registers fn, calling it straight away with the current value if
// there is one. The returned func unregisters it.
func (v *Value[T]) Observe(fn func(T)) (cancel func()) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.observers = append(v.observers, observer[T]{id: id, fn: fn})
	val, has := v.val, v.has
	v.mu.Unlock()

	if has {
		fn(val)
	}

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		for i, o := range v.observers {
			if o.id == id {
				v.observers = append(v.observers[:i:i], v.observers[i+1:]...)
				return
			}
		}
	}
}

// An Event is delivered to at most one consumer, however many observers see it.
type Event[T any] struct {
	data     T
	consumed atomic.Bool
}

func NewEvent[T any](data T) *Event[T] {
	return &Event[T]{data: data}
}

// Peek returns the payload without consuming it.
func (e *Event[T]) Peek() T { return e.data }

// Consume calls fn with the payload unless the event was already consumed.
func (e *Event[T]) Consume(fn func(T)) bool {
	if e.consumed.Swap(true) {
		return false
	}
	fn(e.data)
	return true
}
