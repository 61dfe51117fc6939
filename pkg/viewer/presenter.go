// Package viewer is the presenter behind the image viewer screen. It holds
// the decoded original image and a working copy, re-renders the working copy
// off the main executor whenever the adaptation parameter or the camera
// calibration changes, and publishes which of the two is on display.
package viewer

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
	"github.com/abworrall/ambient-viewer/pkg/live"
)

// Importer decodes the referenced image.
type Importer func(ref string, opts imageio.Options) (*imageio.Decoded, error)

type Deps struct {
	Main       live.Executor // publishes all state; the presenter's methods must be called on it
	Background live.Executor // decodes and renders; must run one task at a time
	Algorithm  algorithm.Algorithm
	Import     Importer
	Lux        func() float64
	ColorInfo  func() ecolor.ColorInfo
	Logger     *slog.Logger

	ContinuousUpdate bool // derive a new parameter on every light sensor change
	UseColorInfo     bool
	ScreenMaxSize    int
	AcceptedTypes    []string
}

// Presenter owns the viewer state. Everything observable is a live.Value
// bound to Deps.Main.
type Presenter struct {
	State       *live.Value[State]
	DisplayName *live.Value[string]
	Parameter   *live.Value[float64]
	ColorInfo   *live.Value[ecolor.ColorInfo]
	Original    *live.Value[*Image]
	Displaying  *live.Value[*Image]
	Events      *live.Value[*live.Event[Event]]

	deps Deps
	log  *slog.Logger

	// Main executor only
	filePath      string
	working       *Image
	workingBitmap *imageio.Bitmap

	lastIssued atomic.Uint64

	statsMu   sync.Mutex
	issued    int64
	applied   int64
	discarded int64
	latency   *hdrhistogram.Histogram // microseconds
}

func New(deps Deps) *Presenter {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	main := deps.Main
	return &Presenter{
		State:       live.NewValueOf(main, StateUninitialized),
		DisplayName: live.NewValue[string](main),
		Parameter:   live.NewValue[float64](main),
		ColorInfo:   live.NewValue[ecolor.ColorInfo](main),
		Original:    live.NewValue[*Image](main),
		Displaying:  live.NewValue[*Image](main),
		Events:      live.NewValue[*live.Event[Event]](main),
		deps:        deps,
		log:         deps.Logger,
		latency:     hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
	}
}

func (p *Presenter) lux() int {
	if p.deps.Lux == nil {
		return 0
	}
	return int(p.deps.Lux())
}

func (p *Presenter) cameraColorInfo() ecolor.ColorInfo {
	if p.deps.ColorInfo == nil {
		return ecolor.IdentityColorInfo()
	}
	return p.deps.ColorInfo()
}

func (p *Presenter) emit(e Event) {
	p.Events.Set(live.NewEvent(e))
}

// StartFlow seeds the parameter from the current lux reading and the colour
// info from the camera. It returns true only the first time; the caller then
// goes on to load the file.
func (p *Presenter) StartFlow() bool {
	if p.Parameter.IsSet() {
		return false
	}
	lux := p.lux()
	param := p.deps.Algorithm.Meta().DefaultParameter(lux)
	p.log.Info("viewer: starting", "lux", lux, "parameter", param)
	p.Parameter.Set(param)
	p.ColorInfo.Set(p.cameraColorInfo())
	return true
}

func (p *Presenter) FilePath() string { return p.filePath }

// Working is the latest committed render, or nil.
func (p *Presenter) Working() *Image { return p.working }

// Generation is the number of the most recently issued render.
func (p *Presenter) Generation() uint64 { return p.lastIssued.Load() }

// LoadFile imports the file in the background. Only the first load is acted
// on, unless it failed.
func (p *Presenter) LoadFile(ref string) {
	p.filePath = ref
	if p.State.Value() != StateUninitialized {
		return
	}

	p.State.Set(StateLoading)
	p.DisplayName.Set(imageio.DisplayName(ref))

	opts := imageio.Options{ScreenMaxSize: p.deps.ScreenMaxSize, AcceptedTypes: p.deps.AcceptedTypes}
	p.deps.Background.Execute(func() {
		d, err := p.deps.Import(ref, opts)
		p.deps.Main.Execute(func() { p.onLoaded(ref, d, err) })
	})
}

func (p *Presenter) onLoaded(ref string, d *imageio.Decoded, err error) {
	if err != nil {
		p.log.Warn("viewer: load failed", "file", ref, "err", err)
		var unsupported *imageio.UnsupportedTypeError
		if errors.As(err, &unsupported) {
			p.emit(UnsupportedFileType{MimeType: unsupported.MimeType})
		} else {
			p.emit(ReadError{Err: err})
		}
		p.State.Set(StateUninitialized)
		return
	}

	p.log.Info("viewer: loaded", "file", ref, "size", d.Bitmap, "type", d.MimeType, "srgb", d.SRGB)
	if !d.SRGB {
		p.emit(NonSrgbWarning{})
	}

	p.workingBitmap = d.Bitmap.Copy()
	orig := &Image{Kind: ImageOriginal, Bitmap: d.Bitmap}
	p.Original.Set(orig)
	p.Displaying.Set(orig)

	p.State.Set(StateProcessing)
	p.render(true)
}

// SetParameter re-renders with a new parameter. A value exactly equal to the
// current one is ignored, so repeated identical sensor readings cost nothing.
// A manual change brings the working image on screen.
func (p *Presenter) SetParameter(v float64, manual bool) {
	if cur, ok := p.Parameter.Get(); ok && cur == v {
		return
	}
	p.Parameter.Set(v)
	p.renderIfLoaded(manual)
}

// SetColorInfo always re-renders, since calibration changes continuously.
func (p *Presenter) SetColorInfo(ci ecolor.ColorInfo) {
	p.ColorInfo.Set(ci)
	p.renderIfLoaded(false)
}

func (p *Presenter) renderIfLoaded(setWorking bool) {
	if p.Original.Value() == nil {
		return // the render after loading will pick the new value up
	}
	p.State.Set(StateProcessing)
	p.render(setWorking)
}

func (p *Presenter) parameters() algorithm.Parameters {
	param, ok := p.Parameter.Get()
	if !ok {
		param = p.deps.Algorithm.Meta().DefaultParameter(p.lux())
	}
	ci, ok := p.ColorInfo.Get()
	if !ok {
		ci = ecolor.IdentityColorInfo()
	}
	return algorithm.Parameters{Parameter: param, ColorInfo: ci, UseColorInfo: p.deps.UseColorInfo}
}

// render issues a new generation. The background task skips the work if a
// newer render was issued before it started; the result is only committed
// if it is still the newest when it gets back to main.
func (p *Presenter) render(setWorking bool) {
	orig := p.Original.Value()
	params := p.parameters()
	g := p.lastIssued.Add(1)
	issuedAt := time.Now()

	p.statsMu.Lock()
	p.issued++
	p.statsMu.Unlock()
	p.log.Debug("viewer: render issued", "generation", g, "params", params)

	p.deps.Background.Execute(func() {
		if g != p.lastIssued.Load() {
			p.discard(g, "superseded before start")
			return
		}
		scratch := orig.Bitmap.Copy()
		algorithm.Run(p.deps.Algorithm, params, scratch.Pix, scratch.Width, scratch.Height)
		p.deps.Main.Execute(func() { p.commit(g, params, scratch, setWorking, issuedAt) })
	})
}

func (p *Presenter) discard(g uint64, why string) {
	p.statsMu.Lock()
	p.discarded++
	p.statsMu.Unlock()
	p.log.Debug("viewer: render discarded", "generation", g, "reason", why)
}

func (p *Presenter) commit(g uint64, params algorithm.Parameters, scratch *imageio.Bitmap, setWorking bool, issuedAt time.Time) {
	if g != p.lastIssued.Load() {
		p.discard(g, "superseded")
		return
	}
	if err := p.workingBitmap.CopyFrom(scratch.Pix); err != nil {
		p.log.Error("viewer: render result dropped", "generation", g, "err", err)
		return
	}

	p.working = &Image{Kind: ImageWorking, Bitmap: p.workingBitmap, Parameters: &params}
	p.onWorkingImageReady(setWorking)
	p.State.Set(StateDisplaying)

	elapsed := time.Since(issuedAt)
	p.statsMu.Lock()
	p.applied++
	_ = p.latency.RecordValue(max(1, elapsed.Microseconds()))
	p.statsMu.Unlock()
	p.log.Debug("viewer: render applied", "generation", g, "elapsed", elapsed)
}

// onWorkingImageReady decides whether a fresh render becomes visible. An
// automatic update never replaces the original while the user is looking at
// it; a manual one always shows its result.
func (p *Presenter) onWorkingImageReady(setWorking bool) {
	cur := p.Displaying.Value()
	if cur == nil {
		return
	}
	if !setWorking && cur.Kind == ImageOriginal {
		return
	}
	p.ShowImage(ImageWorking)
}

// ShowImage displays the original or working image, if there is one yet.
func (p *Presenter) ShowImage(kind ImageKind) {
	switch kind {
	case ImageOriginal:
		if orig := p.Original.Value(); orig != nil {
			p.Displaying.Set(orig)
		}
	case ImageWorking:
		if p.working != nil {
			p.Displaying.Set(p.working)
		}
	}
}

// SwitchDisplayed toggles between the original and working images.
func (p *Presenter) SwitchDisplayed() {
	cur := p.Displaying.Value()
	if cur == nil {
		return
	}
	if cur.Kind == ImageOriginal {
		p.ShowImage(ImageWorking)
	} else {
		p.ShowImage(ImageOriginal)
	}
}

func (p *Presenter) ImageClicked() { p.SwitchDisplayed() }

// LightSensorChanged derives a parameter from the current lux, if continuous
// updates are on and an image is loaded. It is only suggested, as an event;
// the caller decides whether to apply it.
func (p *Presenter) LightSensorChanged() {
	if !p.deps.ContinuousUpdate || p.State.Value().NotLoaded() {
		return
	}
	param := p.deps.Algorithm.Meta().DefaultParameter(p.lux())
	p.emit(LightSensorParameterComputed{Parameter: param})
}
