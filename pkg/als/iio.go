package als

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultIIORoot     = "/sys/bus/iio/devices"
	DefaultIIOInterval = 250 * time.Millisecond
)

// IIODriver finds light sensors exposed by the Linux industrial I/O
// subsystem, which publishes each channel as a small text file.
type IIODriver struct {
	Root     string
	Interval time.Duration
}

func (d IIODriver) DefaultLightSensor() (Sensor, error) {
	root := d.Root
	if root == "" {
		root = DefaultIIORoot
	}
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultIIOInterval
	}

	dirs, err := filepath.Glob(filepath.Join(root, "iio:device*"))
	if err != nil {
		return nil, fmt.Errorf("als: scan %s: %w", root, err)
	}
	for _, dir := range dirs {
		s := &IIOSensor{dir: dir, interval: interval}
		if _, err := s.read(); err == nil {
			s.name = strings.TrimSpace(readFileOr(filepath.Join(dir, "name"), filepath.Base(dir)))
			return s, nil
		}
	}
	return nil, ErrNoSensor
}

// IIOSensor polls one device. Polling runs while at least one listener is
// registered.
type IIOSensor struct {
	dir      string
	name     string
	interval time.Duration

	mu        sync.Mutex
	listeners []Listener
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	deliverMu sync.Mutex // held while calling listeners
}

func (s *IIOSensor) Name() string { return s.name }

// Resolution is the lux per raw count, or 0 if the device reports
// processed values.
func (s *IIOSensor) Resolution() float64 {
	if _, err := os.Stat(filepath.Join(s.dir, "in_illuminance_input")); err == nil {
		return 0
	}
	scale, err := readFloat(filepath.Join(s.dir, "in_illuminance_scale"))
	if err != nil {
		return 1
	}
	return scale
}

func (s *IIOSensor) Register(l Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.listeners {
		if existing == l {
			return nil
		}
	}
	s.listeners = append(s.listeners, l)

	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go s.poll(ctx)
	}
	return nil
}

func (s *IIOSensor) Unregister(l Listener) {
	s.mu.Lock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	var cancel context.CancelFunc
	if len(s.listeners) == 0 && s.cancel != nil {
		cancel = s.cancel
		s.cancel = nil
	}
	s.mu.Unlock()

	// Wait out any delivery that might still hold l
	s.deliverMu.Lock()
	s.deliverMu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

func (s *IIOSensor) poll(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	accuracy := AccuracyUnknown
	for {
		lux, err := s.read()
		next := AccuracyHigh
		if err != nil {
			next = AccuracyUnreliable
		}

		s.deliverMu.Lock()
		s.mu.Lock()
		listeners := append([]Listener(nil), s.listeners...)
		s.mu.Unlock()
		for _, l := range listeners {
			if next != accuracy {
				l.OnAccuracyChanged(next)
			}
			if err == nil {
				l.OnReading(lux)
			}
		}
		s.deliverMu.Unlock()
		accuracy = next

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// read prefers the processed channel, falling back to raw * scale.
func (s *IIOSensor) read() (float64, error) {
	if v, err := readFloat(filepath.Join(s.dir, "in_illuminance_input")); err == nil {
		return v, nil
	}
	raw, err := readFloat(filepath.Join(s.dir, "in_illuminance_raw"))
	if err != nil {
		return 0, err
	}
	scale, err := readFloat(filepath.Join(s.dir, "in_illuminance_scale"))
	if err != nil {
		scale = 1
	}
	return raw * scale, nil
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("als: parse %s: %w", path, err)
	}
	return v, nil
}

func readFileOr(path, def string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return def
	}
	return string(b)
}
