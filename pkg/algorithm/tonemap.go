package algorithm

import (
	"image/color"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/tmo"

	"github.com/abworrall/ambient-viewer/pkg/ecolor"
	"github.com/abworrall/ambient-viewer/pkg/emath"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
)

// ToneMapper runs one of the global HDR tone mapping operators over the
// linearised, colour corrected image.
type ToneMapper struct {
	Operator string

	parameter float64
	adapt     emath.Mat3
}

func (t *ToneMapper) Meta() Meta { return DefaultMeta{} }

func (t *ToneMapper) Init(parameter float64, ci ecolor.ColorInfo) {
	t.parameter = parameter
	t.adapt = emath.Identity3()
	if m, err := ci.AmbientAdaptation(1.0); err == nil {
		t.adapt = m
	}
}

func (t *ToneMapper) Apply(pix []uint32, w, h int) {
	li := imageio.NewLinearImage(&imageio.Bitmap{Width: w, Height: h, Pix: pix})
	li.Transform = t.adapt

	out := t.setup(li).Perform()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			alpha, _, _, _ := imageio.Channels(pix[i])
			c := color.NRGBAModel.Convert(out.At(x, y)).(color.NRGBA)
			pix[i] = imageio.ARGB(alpha, c.R, c.G, c.B)
		}
	}
}

// position of the parameter within its range, 0 in the dark, 1 in daylight
func (t *ToneMapper) brightness() float64 {
	m := t.Meta()
	return emath.Clamp((t.parameter-m.ParameterMin())/(m.ParameterMax()-m.ParameterMin()), 0, 1)
}

// Tweak the tmo parameters so that brighter surroundings get a brighter
// rendition, as with the ambient curve.
func (t *ToneMapper) setup(img hdr.Image) tmo.ToneMappingOperator {
	switch t.Operator {
	case "drago03":
		op := tmo.NewDefaultDrago03(img)
		op.Bias = 1.0 - 0.3*t.brightness() // Higher bias darkens
		return op

	case "reinhard05":
		op := tmo.NewDefaultReinhard05(img)
		op.Chromatic = 0.005
		op.Light = emath.Clamp(t.brightness(), 0.005, 1.0)
		return op
	}

	return tmo.NewLinear(img)
}
