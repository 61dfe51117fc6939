package als

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/ambient-viewer/pkg/live"
)

const maxRecordedLux = 200000 // brighter than direct sunlight

// LightSensor is the feed. Presence is resolved once by Init and never
// changes after that; a missing sensor is final. Readings arrive on the
// driver's goroutine and are posted onto the main executor.
type LightSensor struct {
	Presence   *live.Value[Presence]
	Lux        *live.Value[float64] // -1 until the first reading
	Accuracy   *live.Value[Accuracy]
	Resolution *live.Value[float64]

	log      *slog.Logger
	listener *feedListener

	mu         sync.Mutex
	sensor     Sensor
	registered bool

	histMu sync.Mutex
	hist   *hdrhistogram.Histogram
}

func New(main live.Executor, log *slog.Logger) *LightSensor {
	if log == nil {
		log = slog.Default()
	}
	ls := &LightSensor{
		Presence:   live.NewValueOf(main, PresenceUnknown),
		Lux:        live.NewValueOf(main, -1.0),
		Accuracy:   live.NewValueOf(main, AccuracyUnknown),
		Resolution: live.NewValue[float64](main),
		log:        log,
		hist:       hdrhistogram.New(0, maxRecordedLux, 3),
	}
	ls.listener = &feedListener{ls}
	return ls
}

// Init looks up the sensor. It must be called on the main executor, and does
// nothing if presence has already been resolved.
func (ls *LightSensor) Init(d Driver) {
	if ls.Presence.Value() != PresenceUnknown {
		return
	}

	s, err := d.DefaultLightSensor()
	if err != nil {
		if !errors.Is(err, ErrNoSensor) {
			ls.log.Warn("als: sensor lookup failed", "err", err)
		}
		ls.Resolution.Set(0.0)
		ls.Presence.Set(PresenceAbsent)
		return
	}

	ls.mu.Lock()
	ls.sensor = s
	ls.mu.Unlock()

	ls.log.Info("als: found sensor", "name", s.Name(), "resolution", s.Resolution())
	ls.Resolution.Set(s.Resolution())
	ls.Presence.Set(PresencePresent)
}

// Start registers for readings. It is a no-op without a sensor, or if
// already started.
func (ls *LightSensor) Start() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.sensor == nil || ls.registered {
		return nil
	}
	if err := ls.sensor.Register(ls.listener); err != nil {
		return fmt.Errorf("als: register with %s: %w", ls.sensor.Name(), err)
	}
	ls.registered = true
	ls.log.Debug("als: started")
	return nil
}

// Stop unregisters from the sensor; no readings are delivered after it returns.
func (ls *LightSensor) Stop() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if !ls.registered {
		return
	}
	ls.sensor.Unregister(ls.listener)
	ls.registered = false
	ls.log.Debug("als: stopped")
}

func (ls *LightSensor) Stats() Stats {
	ls.histMu.Lock()
	defer ls.histMu.Unlock()

	h := ls.hist
	if h.TotalCount() == 0 {
		return Stats{}
	}
	return Stats{
		Count: h.TotalCount(),
		Min:   h.Min(),
		Max:   h.Max(),
		Mean:  h.Mean(),
		P50:   h.ValueAtQuantile(50),
		P90:   h.ValueAtQuantile(90),
		P99:   h.ValueAtQuantile(99),
	}
}

func (ls *LightSensor) record(lux float64) {
	v := int64(math.Round(lux))
	if v < 0 || v > maxRecordedLux {
		return
	}
	ls.histMu.Lock()
	defer ls.histMu.Unlock()
	if err := ls.hist.RecordValue(v); err != nil {
		ls.log.Debug("als: reading not recorded", "lux", lux, "err", err)
	}
}

type feedListener struct{ ls *LightSensor }

func (f *feedListener) OnReading(lux float64) {
	f.ls.record(lux)
	f.ls.Lux.Post(lux)
}

func (f *feedListener) OnAccuracyChanged(a Accuracy) {
	f.ls.Accuracy.Post(a)
}
