package algorithm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
)

func grey(v uint8) uint32 { return imageio.ARGB(255, v, v, v) }

func TestDefaultMeta(t *testing.T) {
	m := DefaultMeta{}
	assert.Equal(t, 0.0, m.ParameterMin())
	assert.Equal(t, 5.0, m.ParameterMax())

	assert.InDelta(t, math.Log2(80.0/2500.0)+5, m.DefaultParameter(50), 1e-9, "clamped at 80 lux")
	assert.InDelta(t, math.Log2(80.0/2500.0)+5, m.DefaultParameter(-1), 1e-9)
	assert.InDelta(t, 4.0, m.DefaultParameter(1250), 1e-9)
	assert.InDelta(t, 5.0, m.DefaultParameter(2500), 1e-9)
	assert.InDelta(t, 5.0, m.DefaultParameter(100000), 1e-9)
}

func TestNew(t *testing.T) {
	for _, name := range Names {
		a, err := New(name)
		require.NoError(t, err, name)
		assert.Equal(t, 5.0, a.Meta().ParameterMax())
	}

	_, err := New("fattal02")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestEffectiveColorInfo(t *testing.T) {
	ci := ecolor.ColorInfo{Gains: ecolor.Gains{R: 1.2, G: 1, B: 0.9}, Matrix: ecolor.IdentityMatrix()}

	assert.True(t, Parameters{ColorInfo: ci}.EffectiveColorInfo().IsIdentity())
	assert.Equal(t, ci, Parameters{ColorInfo: ci, UseColorInfo: true}.EffectiveColorInfo())
}

func TestAmbientEndpoints(t *testing.T) {
	for _, p := range []float64{0, 2.5, 5} {
		a := NewAmbient()
		a.Init(p, ecolor.IdentityColorInfo())

		pix := []uint32{grey(0), grey(255), imageio.ARGB(255, 255, 0, 0)}
		a.Apply(pix, 3, 1)
		assert.Equal(t, grey(0), pix[0], "black stays black at p=%v", p)
		assert.Equal(t, grey(255), pix[1], "white stays white at p=%v", p)
		assert.Equal(t, imageio.ARGB(255, 255, 0, 0), pix[2], "saturated red stays put at p=%v", p)
	}
}

func TestAmbientLiftsShadows(t *testing.T) {
	a := NewAmbient()
	a.Init(0, ecolor.IdentityColorInfo())

	pix := make([]uint32, 256)
	for i := range pix {
		pix[i] = grey(uint8(i))
	}
	a.Apply(pix, 16, 16)

	_, r, _, _ := imageio.Channels(pix[20])
	assert.Greater(t, r, uint8(20), "dark greys are brightened")

	prev := uint8(0)
	for i, p := range pix {
		_, r, g, b := imageio.Channels(p)
		assert.Equal(t, r, g)
		assert.Equal(t, r, b)
		assert.GreaterOrEqual(t, r, prev, "curve must be monotonic at %d", i)
		prev = r
	}
}

func TestAmbientBrightRoomLiftsMore(t *testing.T) {
	lifted := func(p float64) uint8 {
		a := NewAmbient()
		a.Init(p, ecolor.IdentityColorInfo())
		pix := []uint32{grey(40)}
		a.Apply(pix, 1, 1)
		_, r, _, _ := imageio.Channels(pix[0])
		return r
	}
	assert.Greater(t, lifted(5), lifted(0), "shadows wash out in bright surroundings")
}

func TestAmbientPreservesHueOrderAndAlpha(t *testing.T) {
	a := NewAmbient()
	a.Init(1, ecolor.IdentityColorInfo())

	pix := []uint32{imageio.ARGB(77, 120, 60, 30)}
	a.Apply(pix, 1, 1)

	alpha, r, g, b := imageio.Channels(pix[0])
	assert.Equal(t, uint8(77), alpha)
	assert.Greater(t, r, g)
	assert.Greater(t, g, b)
}

func TestAmbientIgnoresColorInfo(t *testing.T) {
	ci := ecolor.ColorInfo{Gains: ecolor.Gains{R: 2, G: 1, B: 1}, Matrix: ecolor.IdentityMatrix()}

	plain, withCI := []uint32{grey(100)}, []uint32{grey(100)}
	Run(NewAmbient(), Parameters{Parameter: 2}, plain, 1, 1)
	Run(NewAmbient(), Parameters{Parameter: 2, ColorInfo: ci, UseColorInfo: true}, withCI, 1, 1)
	assert.Equal(t, plain, withCI)
}

func TestAmbientWhiteBalance(t *testing.T) {
	a, err := New("ambient-wb")
	require.NoError(t, err)

	ci := ecolor.ColorInfo{Gains: ecolor.Gains{R: 2, G: 1, B: 1}, Matrix: ecolor.IdentityMatrix()}
	pix := []uint32{grey(200)}
	Run(a, Parameters{Parameter: 5, ColorInfo: ci, UseColorInfo: true}, pix, 1, 1)

	_, r, g, b := imageio.Channels(pix[0])
	assert.Less(t, r, g, "red is pulled down to undo the red gain")
	assert.Equal(t, g, b)

	// Without colour info it behaves like plain ambient
	plain, wb := []uint32{grey(200)}, []uint32{grey(200)}
	Run(NewAmbient(), Parameters{Parameter: 5}, plain, 1, 1)
	Run(a, Parameters{Parameter: 5, ColorInfo: ci}, wb, 1, 1)
	assert.Equal(t, plain, wb)
}

func TestToneMappers(t *testing.T) {
	for _, name := range []string{"reinhard05", "drago03", "linear"} {
		a, err := New(name)
		require.NoError(t, err)

		w, h := 16, 16
		pix := make([]uint32, w*h)
		for i := range pix {
			pix[i] = imageio.ARGB(200, uint8(i), uint8(i/2), 255-uint8(i))
		}
		Run(a, Parameters{Parameter: 2.5}, pix, w, h)

		nonBlack := 0
		for _, p := range pix {
			alpha, r, g, b := imageio.Channels(p)
			require.Equal(t, uint8(200), alpha, name)
			if r|g|b != 0 {
				nonBlack++
			}
		}
		assert.Greater(t, nonBlack, 0, name)
	}
}
