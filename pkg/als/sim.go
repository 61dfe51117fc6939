package als

import (
	"context"
	"sync"
	"time"
)

// SimSensor is an in-process sensor; readings are injected with Emit or
// played back from a script.
type SimSensor struct {
	name       string
	resolution float64

	mu        sync.Mutex
	listeners []Listener

	deliverMu sync.Mutex // held while calling listeners
}

func NewSimSensor(name string, resolution float64) *SimSensor {
	return &SimSensor{name: name, resolution: resolution}
}

func (s *SimSensor) Name() string        { return s.name }
func (s *SimSensor) Resolution() float64 { return s.resolution }

func (s *SimSensor) Register(l Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return nil
		}
	}
	s.listeners = append(s.listeners, l)
	return nil
}

// Unregister returns once any delivery in progress has finished, so l is not
// called again after it.
func (s *SimSensor) Unregister(l Listener) {
	s.mu.Lock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

// Listeners is how many listeners are currently registered.
func (s *SimSensor) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *SimSensor) deliver(fn func(Listener)) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (s *SimSensor) Emit(lux float64) {
	s.deliver(func(l Listener) { l.OnReading(lux) })
}

func (s *SimSensor) SetAccuracy(a Accuracy) {
	s.deliver(func(l Listener) { l.OnAccuracyChanged(a) })
}

// Play emits the readings one per interval, then keeps repeating the last one
// until the context is done.
func (s *SimSensor) Play(ctx context.Context, interval time.Duration, readings ...float64) error {
	if len(readings) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	s.SetAccuracy(AccuracyHigh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		s.Emit(readings[min(i, len(readings)-1)])
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SimDriver hands out its Sensor; a nil Sensor simulates a device without one.
type SimDriver struct {
	Sensor Sensor
}

func (d SimDriver) DefaultLightSensor() (Sensor, error) {
	if d.Sensor == nil {
		return nil, ErrNoSensor
	}
	return d.Sensor, nil
}
