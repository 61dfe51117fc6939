package algorithm

import (
	"math"

	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/emath"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
)

// Ambient lifts dark content by a two-step curve whose knee tracks the lux
// implied by the parameter. Each pixel is scaled by a factor taken from its
// brightest channel, so hue is preserved.
//
// With WhiteBalance set, the pixel is first corrected by the inverse of the
// camera's colour transform, so content is seen under the same illuminant the
// viewer is in.
type Ambient struct {
	WhiteBalance bool

	parameter float64
	adapt     emath.Mat3
	table     [256][256]uint8 // [major][minor], minor <= major
}

func NewAmbient() *Ambient { return &Ambient{adapt: emath.Identity3()} }

func (a *Ambient) Meta() Meta { return DefaultMeta{} }

func (a *Ambient) Init(parameter float64, ci ecolor.ColorInfo) {
	a.parameter = parameter

	a.adapt = emath.Identity3()
	if a.WhiteBalance {
		if m, err := ci.AmbientAdaptation(1.0); err == nil {
			a.adapt = m
		}
	}

	adjust := curve(parameter)
	for major := 0; major < 256; major++ {
		for minor := 0; minor <= major; minor++ {
			a.table[major][minor] = imageio.Delinearize(adjust[major] * imageio.Linearize(uint8(minor)))
		}
	}
}

// curve returns the gain for each 8-bit value of the brightest channel.
func curve(parameter float64) [256]float64 {
	lux := emath.Clamp(math.Pow(2, (parameter-10)/2)*MaxLux, MinLux, MaxLux)
	x1 := lux / 10000.0
	k1 := (0.5 - x1) * 8.0
	y1 := k1 * x1

	var adjust [256]float64
	for i := range adjust {
		l := imageio.Linearize(uint8(i))
		if l < x1 {
			adjust[i] = k1
		} else {
			adjust[i] = (y1 + (l-x1)*(1.0-y1)/(1.0-x1)) / l
		}
	}
	return adjust
}

func (a *Ambient) Apply(pix []uint32, w, h int) {
	n := w * h
	for i := 0; i < n; i++ {
		alpha, r, g, b := imageio.Channels(pix[i])
		if a.WhiteBalance {
			r, g, b = a.balance(r, g, b)
		}
		l := max(r, g, b)
		pix[i] = imageio.ARGB(alpha, a.table[l][r], a.table[l][g], a.table[l][b])
	}
}

func (a *Ambient) balance(r, g, b uint8) (uint8, uint8, uint8) {
	v := a.adapt.Apply(emath.Vec3{imageio.Linearize(r), imageio.Linearize(g), imageio.Linearize(b)})
	return imageio.Delinearize(v[0]), imageio.Delinearize(v[1]), imageio.Delinearize(v[2])
}
