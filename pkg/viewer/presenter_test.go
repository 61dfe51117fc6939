package viewer

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
	"github.com/abworrall/ambient-viewer/pkg/live"
)

// stampAlgorithm fills every pixel with the parameter, scaled, so a test can
// tell which render produced a buffer.
type stampAlgorithm struct {
	parameter float64
	inits     []float64
	colorInfo []ecolor.ColorInfo
}

func (a *stampAlgorithm) Meta() algorithm.Meta { return algorithm.DefaultMeta{} }

func (a *stampAlgorithm) Init(parameter float64, ci ecolor.ColorInfo) {
	a.parameter = parameter
	a.inits = append(a.inits, parameter)
	a.colorInfo = append(a.colorInfo, ci)
}

func (a *stampAlgorithm) Apply(pix []uint32, w, h int) {
	for i := 0; i < w*h; i++ {
		pix[i] = stamp(a.parameter)
	}
}

func stamp(parameter float64) uint32 { return uint32(parameter*1000) + 1 }

type harness struct {
	p       *Presenter
	main    *live.ManualExecutor
	bg      *live.ManualExecutor
	alg     *stampAlgorithm
	lux     float64
	ci      ecolor.ColorInfo
	decoded *imageio.Decoded
	loadErr error
	imports []imageio.Options
}

func newHarness(t *testing.T, continuous bool) *harness {
	t.Helper()
	h := &harness{
		main: &live.ManualExecutor{},
		bg:   &live.ManualExecutor{},
		alg:  &stampAlgorithm{},
		lux:  50,
		ci:   ecolor.IdentityColorInfo(),
		decoded: &imageio.Decoded{
			Bitmap:   imageio.NewBitmap(800, 600),
			MimeType: imageio.MimeJPEG,
			SRGB:     true,
		},
	}
	h.p = New(Deps{
		Main:       h.main,
		Background: h.bg,
		Algorithm:  h.alg,
		Import: func(ref string, opts imageio.Options) (*imageio.Decoded, error) {
			h.imports = append(h.imports, opts)
			if h.loadErr != nil {
				return nil, h.loadErr
			}
			return h.decoded, nil
		},
		Lux:              func() float64 { return h.lux },
		ColorInfo:        func() ecolor.ColorInfo { return h.ci },
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		ContinuousUpdate: continuous,
		UseColorInfo:     true,
		ScreenMaxSize:    1024,
	})
	return h
}

// settle runs background and main tasks in submission order until both are idle.
func (h *harness) settle() {
	for h.bg.RunAll()+h.main.RunAll() > 0 {
	}
}

// loaded starts the flow and loads a file, with the first render applied.
func (h *harness) loaded(t *testing.T) {
	t.Helper()
	require.True(t, h.p.StartFlow())
	h.p.LoadFile("/photos/dusk.jpg")
	h.settle()
	require.Equal(t, StateDisplaying, h.p.State.Value())
}

func (h *harness) workingParameter(t *testing.T) float64 {
	t.Helper()
	w := h.p.Working()
	require.NotNil(t, w)
	require.NotNil(t, w.Parameters)
	return w.Parameters.Parameter
}

func lastEvent(p *Presenter) Event {
	ev, ok := p.Events.Get()
	if !ok {
		return nil
	}
	var got Event
	ev.Consume(func(e Event) { got = e })
	return got
}

func TestLoadScenario(t *testing.T) {
	h := newHarness(t, false)

	assert.True(t, h.p.StartFlow())
	want := algorithm.DefaultMeta{}.DefaultParameter(50)
	assert.Equal(t, want, h.p.Parameter.Value())
	assert.True(t, h.p.ColorInfo.Value().IsIdentity())
	assert.False(t, h.p.StartFlow(), "only once")

	h.p.LoadFile("file:///photos/dusk.jpg")
	assert.Equal(t, StateLoading, h.p.State.Value())
	assert.Equal(t, "dusk.jpg", h.p.DisplayName.Value())
	assert.Equal(t, "file:///photos/dusk.jpg", h.p.FilePath())

	require.Equal(t, 1, h.bg.RunAll())
	require.Equal(t, 1, h.main.RunAll())
	assert.Equal(t, []imageio.Options{{ScreenMaxSize: 1024}}, h.imports)
	assert.Equal(t, StateProcessing, h.p.State.Value())
	assert.Equal(t, ImageOriginal, h.p.Displaying.Value().Kind)
	assert.Nil(t, h.p.Original.Value().Parameters)

	h.settle()
	assert.Equal(t, StateDisplaying, h.p.State.Value())
	disp := h.p.Displaying.Value()
	assert.Equal(t, ImageWorking, disp.Kind, "the first render is shown")
	assert.Equal(t, 800, disp.Bitmap.Width)
	assert.Equal(t, 600, disp.Bitmap.Height)
	assert.Equal(t, want, disp.Parameters.Parameter)
	assert.Equal(t, stamp(want), disp.Bitmap.Pix[0])
	assert.Equal(t, uint32(0), h.p.Original.Value().Bitmap.Pix[0], "the original is never touched")
	assert.Nil(t, lastEvent(h.p), "sRGB file, no warning")
}

func TestStaleRendersAreDiscarded(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)
	base := h.p.Generation()

	// Each render gets past the start check, and its commit queues on main
	for _, v := range []float64{0.2, 0.5, 0.8} {
		h.p.SetParameter(v, false)
		require.Equal(t, 1, h.bg.RunAll())
	}
	assert.Equal(t, base+3, h.p.Generation())
	require.Equal(t, 3, h.main.Pending())

	// The newest finishes first, the older two after it
	require.True(t, h.main.RunLast())
	assert.Equal(t, 0.8, h.workingParameter(t))
	assert.Equal(t, StateDisplaying, h.p.State.Value())

	h.main.RunAll()
	assert.Equal(t, 0.8, h.workingParameter(t))
	assert.Equal(t, stamp(0.8), h.p.Working().Bitmap.Pix[0])
	assert.Equal(t, int64(2), h.p.Stats().Discarded)
}

func TestSupersededRenderSkipsTheWork(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)
	inits := len(h.alg.inits)

	h.p.SetParameter(0.2, false)
	h.p.SetParameter(0.5, false)
	h.p.SetParameter(0.8, false)
	h.settle()

	assert.Equal(t, []float64{0.8}, h.alg.inits[inits:], "only the newest render runs the algorithm")
	assert.Equal(t, 0.8, h.workingParameter(t))
	assert.Equal(t, 0.8, h.p.Parameter.Value())
}

func TestIdenticalParameterRendersOnce(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)
	g := h.p.Generation()

	h.p.SetParameter(1.5, false)
	h.p.SetParameter(1.5, false)
	h.p.SetParameter(1.5, true)
	assert.Equal(t, g+1, h.p.Generation())
	assert.Equal(t, 1, h.bg.Pending())
}

func TestColorInfoAlwaysRenders(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)
	g := h.p.Generation()

	ci := ecolor.ColorInfo{Gains: ecolor.Gains{R: 1.2, G: 1, B: 0.9}, Matrix: ecolor.IdentityMatrix()}
	h.p.SetColorInfo(ci)
	h.p.SetColorInfo(ci)
	assert.Equal(t, g+2, h.p.Generation())
	assert.Equal(t, StateProcessing, h.p.State.Value())

	h.settle()
	assert.Equal(t, ci, h.p.Working().Parameters.ColorInfo)
	assert.True(t, h.p.Working().Parameters.UseColorInfo)
	assert.Equal(t, ci, h.alg.colorInfo[len(h.alg.colorInfo)-1])
}

func TestGenerationsStrictlyIncrease(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)

	last := h.p.Generation()
	for i := 0; i < 20; i++ {
		if i%3 == 0 {
			h.p.SetColorInfo(h.ci)
		} else {
			h.p.SetParameter(float64(i)/10, i%2 == 0)
		}
		g := h.p.Generation()
		assert.Greater(t, g, last)
		last = g
		if i%4 == 0 {
			h.settle()
		}
	}
}

func TestVisibleImageRule(t *testing.T) {
	for _, tc := range []struct {
		name    string
		showing ImageKind
		manual  bool
		want    ImageKind
	}{
		{"original, automatic update", ImageOriginal, false, ImageOriginal},
		{"original, manual update", ImageOriginal, true, ImageWorking},
		{"working, automatic update", ImageWorking, false, ImageWorking},
		{"working, manual update", ImageWorking, true, ImageWorking},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.loaded(t)
			h.p.ShowImage(tc.showing)
			require.Equal(t, tc.showing, h.p.Displaying.Value().Kind)

			h.p.SetParameter(3.3, tc.manual)
			h.settle()

			disp := h.p.Displaying.Value()
			assert.Equal(t, tc.want, disp.Kind)
			if tc.want == ImageWorking {
				assert.Equal(t, 3.3, disp.Parameters.Parameter, "the new render is what's shown")
			}
			assert.Equal(t, 3.3, h.workingParameter(t))
		})
	}
}

func TestImageClickedToggles(t *testing.T) {
	h := newHarness(t, false)
	h.p.ImageClicked()
	assert.False(t, h.p.Displaying.IsSet(), "nothing to toggle yet")

	h.loaded(t)
	assert.Equal(t, ImageWorking, h.p.Displaying.Value().Kind)
	h.p.ImageClicked()
	assert.Equal(t, ImageOriginal, h.p.Displaying.Value().Kind)
	h.p.ImageClicked()
	assert.Equal(t, ImageWorking, h.p.Displaying.Value().Kind)
	assert.Equal(t, StateDisplaying, h.p.State.Value(), "switching does not touch the lifecycle")
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t, false)
	var states []State
	h.p.State.Observe(func(s State) { states = append(states, s) })

	h.loaded(t)
	h.p.SetParameter(2.0, false)
	h.settle()

	assert.Equal(t, []State{
		StateUninitialized,
		StateLoading,
		StateProcessing,
		StateDisplaying,
		StateProcessing,
		StateDisplaying,
	}, states)
}

func TestParameterBeforeLoadIsHeld(t *testing.T) {
	h := newHarness(t, false)
	require.True(t, h.p.StartFlow())

	h.p.SetParameter(4.0, true)
	assert.Equal(t, uint64(0), h.p.Generation())
	assert.Equal(t, StateUninitialized, h.p.State.Value())

	h.p.LoadFile("/photos/dusk.jpg")
	h.p.SetParameter(4.5, false)
	assert.Equal(t, StateLoading, h.p.State.Value())
	h.settle()

	assert.Equal(t, 4.5, h.workingParameter(t))
	assert.Equal(t, uint64(1), h.p.Generation())
}

func TestLoadIsOnlyActedOnOnce(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)

	h.p.LoadFile("/photos/other.jpg")
	assert.Equal(t, "/photos/other.jpg", h.p.FilePath())
	assert.Equal(t, 0, h.bg.Pending())
	assert.Len(t, h.imports, 1)
}

func TestLoadErrors(t *testing.T) {
	h := newHarness(t, false)
	h.loadErr = &imageio.UnsupportedTypeError{MimeType: "image/png"}
	require.True(t, h.p.StartFlow())

	h.p.LoadFile("/photos/shot.png")
	h.settle()
	assert.Equal(t, UnsupportedFileType{MimeType: "image/png"}, lastEvent(h.p))
	assert.Equal(t, StateUninitialized, h.p.State.Value())
	assert.False(t, h.p.Original.IsSet())
	assert.Equal(t, uint64(0), h.p.Generation(), "the pipeline never starts")

	ioErr := &imageio.ReadError{Ref: "/photos/gone.jpg", Err: errors.New("no such file")}
	h.loadErr = ioErr
	h.p.LoadFile("/photos/gone.jpg")
	h.settle()
	assert.Equal(t, ReadError{Err: ioErr}, lastEvent(h.p))

	// A failed load can be retried
	h.loadErr = nil
	h.p.LoadFile("/photos/dusk.jpg")
	h.settle()
	assert.Equal(t, StateDisplaying, h.p.State.Value())
}

func TestNonSrgbWarning(t *testing.T) {
	h := newHarness(t, false)
	h.decoded.SRGB = false
	h.loaded(t)
	assert.Equal(t, NonSrgbWarning{}, lastEvent(h.p))
	assert.Nil(t, lastEvent(h.p), "consumed")
}

func TestLightSensorChanged(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)
	h.p.LightSensorChanged()
	assert.Nil(t, lastEvent(h.p), "continuous update is off")

	h = newHarness(t, true)
	h.p.LightSensorChanged()
	assert.Nil(t, lastEvent(h.p), "nothing loaded")

	h.loaded(t)
	h.lux = 1250
	h.p.LightSensorChanged()
	assert.Equal(t, LightSensorParameterComputed{Parameter: 4.0}, lastEvent(h.p))
	assert.NotEqual(t, 4.0, h.p.Parameter.Value(), "the event is only a suggestion")
}

func TestStats(t *testing.T) {
	h := newHarness(t, false)
	h.loaded(t)
	h.p.SetParameter(1, false)
	h.p.SetParameter(2, false)
	h.settle()

	st := h.p.Stats()
	assert.Equal(t, int64(3), st.Issued)
	assert.Equal(t, int64(2), st.Applied)
	assert.Equal(t, int64(1), st.Discarded)
	assert.Contains(t, st.String(), "issued=3")
}
