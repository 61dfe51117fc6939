package ecolor

import (
	"errors"
	"fmt"
	"math"

	"github.com/mdouchement/hdr/hdrcolor"
	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/ambient-viewer/pkg/emath"
)

var ErrNegativeGain = errors.New("ecolor: negative gain")

// A Rational is a fraction as reported in camera colour metadata.
type Rational struct {
	Num, Den int64
}

func R(num, den int64) Rational { return Rational{num, den} }

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// Gains are the per-channel white balance multipliers the camera chose.
type Gains struct {
	R, G, B float64
}

func IdentityGains() Gains { return Gains{1, 1, 1} }

func NewGains(r, g, b float64) (Gains, error) {
	if r < 0 || g < 0 || b < 0 {
		return Gains{}, fmt.Errorf("%w: (%g, %g, %g)", ErrNegativeGain, r, g, b)
	}
	return Gains{r, g, b}, nil
}

func (g Gains) Vec3() emath.Vec3 { return emath.Vec3{g.R, g.G, g.B} }

func (g Gains) String() string { return fmt.Sprintf("Gains(%g, %g, %g)", g.R, g.G, g.B) }

// A ColorMatrix is the camera's 3x3 colour correction transform, row-major.
// The array is copied with the value, so a ColorMatrix never changes.
type ColorMatrix struct {
	elems [9]float64
}

func IdentityMatrix() ColorMatrix {
	return ColorMatrix{elems: [9]float64(emath.Identity3())}
}

func NewColorMatrix(elems [9]float64) ColorMatrix { return ColorMatrix{elems: elems} }

func ColorMatrixFromRationals(r [9]Rational) ColorMatrix {
	var m ColorMatrix
	for i := range r {
		m.elems[i] = r[i].Float64()
	}
	return m
}

func (m ColorMatrix) At(row, col int) float64 { return m.elems[3*row+col] }
func (m ColorMatrix) Elements() [9]float64  { return m.elems }
func (m ColorMatrix) Mat3() emath.Mat3      { return emath.Mat3(m.elems) }

func (m ColorMatrix) String() string {
	e := m.elems
	return fmt.Sprintf("Matrix(%g %g %g, %g %g %g, %g %g %g)", e[0], e[1], e[2], e[3], e[4], e[5], e[6], e[7], e[8])
}

// ColorInfo is one capture's worth of colour calibration: the white balance
// gains, and the correction matrix applied after them.
type ColorInfo struct {
	Gains  Gains
	Matrix ColorMatrix
}

// IdentityColorInfo is what we publish before any capture has completed.
func IdentityColorInfo() ColorInfo {
	return ColorInfo{Gains: IdentityGains(), Matrix: IdentityMatrix()}
}

func (ci ColorInfo) IsIdentity() bool { return ci == IdentityColorInfo() }

func (ci ColorInfo) String() string { return fmt.Sprintf("ColorInfo{%s, %s}", ci.Gains, ci.Matrix) }

// Transform is the full camera correction, CCM x diag(gains): gains are
// applied first, then the matrix.
func (ci ColorInfo) Transform() emath.Mat3 {
	ccm := mat.NewDense(3, 3, sliceOf(ci.Matrix.Mat3()))
	d := mat.NewDiagDense(3, []float64{ci.Gains.R, ci.Gains.G, ci.Gains.B})

	var out mat.Dense
	out.Mul(ccm, d)
	return mat3Of(&out)
}

// AmbientAdaptation builds a matrix that shifts an image's white towards the
// colour of the light the camera is seeing, by undoing the camera's own
// correction. It is scaled so white stays within [0,1], then blended with the
// identity by strength (0 = no adaptation, 1 = full).
func (ci ColorInfo) AmbientAdaptation(strength float64) (emath.Mat3, error) {
	if ci.IsIdentity() || strength == 0 {
		return emath.Identity3(), nil
	}

	t := ci.Transform()
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, sliceOf(t))); err != nil {
		return emath.Identity3(), fmt.Errorf("ecolor: transform not invertible: %w", err)
	}
	a := mat3Of(&inv)

	white := a.Apply(emath.Vec3{1, 1, 1})
	peak := math.Max(white[0], math.Max(white[1], white[2]))
	if peak <= 0 {
		return emath.Identity3(), fmt.Errorf("ecolor: degenerate adaptation, white maps to %s", white)
	}
	a = a.Scale(1 / peak)

	id := emath.Identity3()
	var out emath.Mat3
	for i := range out {
		out[i] = (1-strength)*id[i] + strength*a[i]
	}
	return out, nil
}

// ApplyMatrix transforms a linear RGB colour.
func ApplyMatrix(rgb hdrcolor.RGB, m emath.Mat3) hdrcolor.RGB {
	v := m.Apply(emath.Vec3{rgb.R, rgb.G, rgb.B})
	return hdrcolor.RGB{R: v[0], G: v[1], B: v[2]}
}

func HDRRGBFloorAt(c1 hdrcolor.RGB, min float64) hdrcolor.RGB {
	c2 := c1
	if c2.R < min {
		c2.R = min
	}
	if c2.G < min {
		c2.G = min
	}
	if c2.B < min {
		c2.B = min
	}
	return c2
}

func HDRRGBCeilingAt(c1 hdrcolor.RGB, max float64) hdrcolor.RGB {
	c2 := c1
	if c2.R > max {
		c2.R = max
	}
	if c2.G > max {
		c2.G = max
	}
	if c2.B > max {
		c2.B = max
	}
	return c2
}

func sliceOf(m emath.Mat3) []float64 {
	s := make([]float64, 9)
	copy(s, m[:])
	return s
}

func mat3Of(d *mat.Dense) emath.Mat3 {
	var m emath.Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[3*r+c] = d.At(r, c)
		}
	}
	return m
}
