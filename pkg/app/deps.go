// Package app wires the feeds, the presenter and their executors together,
// the way the viewer screen does, from a Config.
package app

import (
	"log/slog"
	"os"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/als"
	"github.com/abworrall/ambient-viewer/pkg/camera"
	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
	"github.com/abworrall/ambient-viewer/pkg/live"
	"github.com/abworrall/ambient-viewer/pkg/viewer"
)

// Deps is everything the screen needs, built once and passed down.
type Deps struct {
	Config Config
	Logger *slog.Logger

	Main       live.Executor // all observable state is published here
	Background live.Executor // decode and render, one task at a time

	Algorithm algorithm.Algorithm
	Import    viewer.Importer

	Sensor       *als.LightSensor
	SensorDriver als.Driver
	SimSensor    *als.SimSensor // nil unless the sim driver is configured

	Camera        *camera.Feed
	CameraManager camera.Manager // nil if the camera is disabled

	closers []func()
}

func NewLogger(verbosity int) *slog.Logger {
	level := slog.LevelInfo
	if verbosity > 0 {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewDeps builds the production wiring: a main worker, a background worker,
// and the drivers named in the config.
func NewDeps(cfg Config, log *slog.Logger) (*Deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	main := live.NewWorker("main")
	bg := live.NewWorker("background")
	d := &Deps{Main: main, Background: bg}
	d.closers = append(d.closers, bg.Close, main.Close)

	if err := d.wire(cfg, log); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// NewDepsWith wires the config onto the given executors. Tests use this to
// drive both executors by hand.
func NewDepsWith(cfg Config, log *slog.Logger, main, bg live.Executor) (*Deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Deps{Main: main, Background: bg}
	if err := d.wire(cfg, log); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Deps) wire(cfg Config, log *slog.Logger) error {
	d.Config = cfg
	d.Logger = log

	alg, err := algorithm.New(cfg.Algorithm)
	if err != nil {
		return err
	}
	d.Algorithm = alg
	d.Import = imageio.Import

	d.Sensor = als.New(d.Main, log)
	switch cfg.LightSensor.Driver {
	case "sim":
		d.SimSensor = als.NewSimSensor("sim-als", 1.0)
		d.SensorDriver = als.SimDriver{Sensor: d.SimSensor}
	case "iio":
		d.SensorDriver = als.IIODriver{Root: cfg.LightSensor.IIORoot, Interval: cfg.LightSensor.PollInterval}
	default:
		d.SensorDriver = als.SimDriver{}
	}

	d.Camera = camera.NewFeed(d.Main, log, camera.Options{Interval: cfg.Camera.CaptureInterval})
	d.closers = append([]func(){d.Camera.Close}, d.closers...)
	if cfg.Camera.Driver == "sim" {
		g := cfg.Camera.SimGains
		res := camera.CaptureResult{
			Gains:     camera.RggbGains{R: g[0], GEven: g[1], GOdd: g[1], B: g[2]},
			Transform: camera.IdentityTransform(),
		}
		d.CameraManager = camera.NewSimManager(camera.NewSimCamera(cfg.Camera.ID, res))
	}

	return nil
}

// ViewerDeps is the presenter's view of the wiring.
func (d *Deps) ViewerDeps() viewer.Deps {
	cfg := d.Config
	return viewer.Deps{
		Main:       d.Main,
		Background: d.Background,
		Algorithm:  d.Algorithm,
		Import:     d.Import,
		Lux:        d.Sensor.Lux.Value,
		ColorInfo: func() ecolor.ColorInfo {
			return d.Camera.ColorInfo.Value()
		},
		Logger:           d.Logger,
		ContinuousUpdate: cfg.ContinuousUpdate,
		UseColorInfo:     cfg.UseColorInfo,
		ScreenMaxSize:    cfg.ScreenMaxSize,
		AcceptedTypes:    cfg.AcceptedTypes,
	}
}

// Close stops the camera, then the workers.
func (d *Deps) Close() {
	for _, c := range d.closers {
		c()
	}
	d.closers = nil
}

// Do runs fn on the main executor and waits for it.
func (d *Deps) Do(fn func()) bool {
	if w, ok := d.Main.(*live.Worker); ok {
		return w.Do(fn)
	}
	fn()
	return true
}
