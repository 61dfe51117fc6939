package live

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunsInOrder(t *testing.T) {
	w := NewWorker("test")
	defer w.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		w.Execute(func() { got = append(got, i) })
	}
	w.Do(func() {})

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestWorkerCloseDrainsQueue(t *testing.T) {
	w := NewWorker("test")

	var mu sync.Mutex
	n := 0
	for i := 0; i < 10; i++ {
		w.Execute(func() { mu.Lock(); n++; mu.Unlock() })
	}
	w.Close()

	assert.Equal(t, 10, n)
	assert.False(t, w.Do(func() {}))
	w.Close()
}

func TestTimerFires(t *testing.T) {
	w := NewWorker("test")
	defer w.Close()

	fired := make(chan struct{})
	w.ExecuteAfter(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerStopOnWorkerPreventsTask(t *testing.T) {
	w := NewWorker("test")
	defer w.Close()

	ran := false
	var tm *Timer
	w.Do(func() {
		tm = w.ExecuteAfter(time.Millisecond, func() { ran = true })
		// Let the deadline pass while the worker is busy, so the task is
		// already queued when Stop runs.
		time.Sleep(10 * time.Millisecond)
		assert.True(t, tm.Stop())
	})
	w.Do(func() {})

	assert.False(t, ran)
	assert.False(t, tm.Stop())
	assert.False(t, (*Timer)(nil).Stop())
}

func TestManualExecutorOrder(t *testing.T) {
	var m ManualExecutor
	var got []string
	m.Execute(func() { got = append(got, "a") })
	m.Execute(func() { got = append(got, "b") })
	m.Execute(func() {
		got = append(got, "c")
		m.Execute(func() { got = append(got, "d") })
	})

	require.Equal(t, 3, m.Pending())
	assert.True(t, m.RunLast())
	assert.True(t, m.RunAt(1))
	assert.False(t, m.RunAt(7))
	assert.Equal(t, 2, m.RunAll())
	assert.Equal(t, []string{"c", "b", "a", "d"}, got)
}

func TestValueReplaysLastValue(t *testing.T) {
	v := NewValue[int](Inline{})
	_, ok := v.Get()
	assert.False(t, ok)

	var seen []int
	cancel := v.Observe(func(x int) { seen = append(seen, x) })
	assert.Empty(t, seen)

	v.Set(1)
	v.Set(2)

	var late []int
	v.Observe(func(x int) { late = append(late, x) })

	cancel()
	v.Set(3)

	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []int{2, 3}, late)
	assert.Equal(t, 3, v.Value())
}

func TestValuePostMarshalsOntoExecutor(t *testing.T) {
	var main ManualExecutor
	v := NewValueOf(&main, "initial")

	v.Post("next")
	assert.Equal(t, "initial", v.Value())
	assert.Equal(t, 1, main.Pending())

	main.RunAll()
	assert.Equal(t, "next", v.Value())
}

func TestEventConsumedOnce(t *testing.T) {
	e := NewEvent("hello")
	n := 0
	assert.True(t, e.Consume(func(string) { n++ }))
	assert.False(t, e.Consume(func(string) { n++ }))
	assert.Equal(t, 1, n)
	assert.Equal(t, "hello", e.Peek())
}
