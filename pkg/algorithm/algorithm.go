// Package algorithm holds the pixel transforms that adapt an image to the
// viewing conditions. A transform is configured with a single adaptation
// parameter (usually derived from ambient lux) plus the camera's colour
// calibration, and then rewrites a packed ARGB buffer in place.
package algorithm

import (
	"errors"
	"fmt"

	"github.com/abworrall/ambient-viewer/pkg/ecolor"
)

var ErrUnknownAlgorithm = errors.New("algorithm: unknown name")

// Meta describes the parameter range an algorithm accepts, and how to derive
// a parameter from an ambient lux reading.
type Meta interface {
	ParameterMin() float64
	ParameterMax() float64
	DefaultParameter(lux int) float64
}

// An Algorithm is not safe for concurrent use; Init and Apply are expected to
// run back to back on the same goroutine.
type Algorithm interface {
	Meta() Meta
	Init(parameter float64, ci ecolor.ColorInfo)
	Apply(pix []uint32, w, h int)
}

// Parameters is exactly what produced one rendered frame.
type Parameters struct {
	Parameter    float64
	ColorInfo    ecolor.ColorInfo
	UseColorInfo bool
}

// EffectiveColorInfo is the calibration handed to the algorithm: the real one
// only if it is enabled.
func (p Parameters) EffectiveColorInfo() ecolor.ColorInfo {
	if !p.UseColorInfo {
		return ecolor.IdentityColorInfo()
	}
	return p.ColorInfo
}

func (p Parameters) String() string {
	return fmt.Sprintf("p=%.3f, useColorInfo=%v, %s", p.Parameter, p.UseColorInfo, p.ColorInfo)
}

var Names = []string{"ambient", "ambient-wb", "reinhard05", "drago03", "linear"}

func ListAlgorithms() string {
	return fmt.Sprintf("%v", Names)
}

func New(name string) (Algorithm, error) {
	switch name {
	case "", "ambient":
		return NewAmbient(), nil
	case "ambient-wb":
		a := NewAmbient()
		a.WhiteBalance = true
		return a, nil
	case "reinhard05", "drago03", "linear":
		return &ToneMapper{Operator: name}, nil
	}
	return nil, fmt.Errorf("%w %q, wanted %s", ErrUnknownAlgorithm, name, ListAlgorithms())
}

// Run initialises the algorithm with the parameters and applies it.
func Run(a Algorithm, p Parameters, pix []uint32, w, h int) {
	a.Init(p.Parameter, p.EffectiveColorInfo())
	a.Apply(pix, w, h)
}
