package algorithm

import (
	"math"

	"github.com/abworrall/ambient-viewer/pkg/emath"
)

const (
	MinLux = 80.0
	MaxLux = 2500.0
)

// DefaultMeta maps lux onto [0,5] logarithmically: each doubling of ambient
// light adds one to the parameter, saturating at 2500 lux.
type DefaultMeta struct{}

func (DefaultMeta) ParameterMin() float64 { return 0.0 }
func (DefaultMeta) ParameterMax() float64 { return 5.0 }

func (DefaultMeta) DefaultParameter(lux int) float64 {
	l := emath.Clamp(float64(lux), MinLux, MaxLux)
	return math.Log2(l/MaxLux) + 5.0
}
