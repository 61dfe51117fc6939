package app

import (
	"github.com/abworrall/ambient-viewer/pkg/camera"
	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/live"
	"github.com/abworrall/ambient-viewer/pkg/viewer"
)

// App is the glue of the viewer screen: it routes light sensor and camera
// updates into the presenter, unless manual mode is on. All methods must be
// called on the main executor.
type App struct {
	Presenter *viewer.Presenter

	deps        *Deps
	manual      bool
	initialized bool
	cancels     []func()
}

func New(d *Deps) *App {
	return &App{
		Presenter: viewer.New(d.ViewerDeps()),
		deps:      d,
		manual:    d.Config.ManualMode,
	}
}

func (a *App) ManualMode() bool { return a.manual }

// Start brings the feeds up and opens the file.
func (a *App) Start(file string) error {
	d := a.deps
	p := a.Presenter

	a.cancels = append(a.cancels,
		p.Events.Observe(func(ev *live.Event[viewer.Event]) { ev.Consume(a.onEvent) }),
		d.Sensor.Lux.Observe(func(float64) { p.LightSensorChanged() }),
		d.Camera.ColorInfo.Observe(a.onCameraColorInfo),
		d.Camera.Notices.Observe(func(ev *live.Event[camera.Notice]) {
			ev.Consume(func(n camera.Notice) { d.Logger.Warn("app: camera notice", "notice", n) })
		}),
	)

	d.Sensor.Init(d.SensorDriver)
	if err := d.Sensor.Start(); err != nil {
		return err
	}

	if d.CameraManager != nil {
		d.Camera.Initialize(d.CameraManager)
		d.Camera.SelectCamera(d.Config.Camera.ID)
		d.Camera.Resume()
	}

	a.initialized = true
	if p.StartFlow() {
		if a.manual {
			p.SetParameter(d.Config.ManualParameter, true)
		}
		p.LoadFile(file)
	}
	return nil
}

// Stop releases the sensor and camera, and stops observing.
func (a *App) Stop() {
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
	a.deps.Sensor.Stop()
	a.deps.Camera.Pause()
}

func (a *App) SetManualMode(manual bool) {
	if manual == a.manual {
		return
	}
	a.manual = manual
	a.deps.Logger.Info("app: manual mode", "on", manual)
}

// SetManualParameter is a user edit; its result is always shown.
func (a *App) SetManualParameter(v float64) {
	a.Presenter.SetParameter(v, true)
}

func (a *App) onCameraColorInfo(ci ecolor.ColorInfo) {
	if a.manual || !a.initialized {
		return
	}
	a.Presenter.SetColorInfo(ci)
}

func (a *App) onEvent(e viewer.Event) {
	log := a.deps.Logger
	switch ev := e.(type) {
	case viewer.LightSensorParameterComputed:
		if a.manual {
			return
		}
		a.Presenter.SetParameter(ev.Parameter, false)
	case viewer.NonSrgbWarning:
		log.Warn("app: image is not sRGB, colours may be off")
	case viewer.UnsupportedFileType:
		log.Error("app: unsupported file type", "mimetype", ev.MimeType)
	case viewer.ReadError:
		log.Error("app: could not read image", "err", ev.Err)
	}
}
