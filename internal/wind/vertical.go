package wind

import (
	"fmt"
	"math"
	"slices"
)

const (
	// NeutralExponent is the power-law shear exponent of a neutral atmosphere.
	NeutralExponent = 1.0 / 7.0

	// RoughnessLength z0 in meters used by the stability-adjusted profile.
	RoughnessLength = 0.1

	// Stability parameter clamp; outside it the similarity functions are not
	// defined by field data.
	minZeta = -2.0
	maxZeta = 1.0
)

// HeightBracket is the pair of native heights around a requested height.
// Below == Above when the requested height is native.
type HeightBracket struct {
	Below int
	Above int
}

// Native reports whether the bracket collapses onto a single native height.
func (b HeightBracket) Native() bool {
	return b.Below == b.Above
}

// Nearest returns the bracket height closer to h; ties go to Below.
func (b HeightBracket) Nearest(h float64) int {
	if math.Abs(h-float64(b.Below)) <= math.Abs(float64(b.Above)-h) {
		return b.Below
	}
	return b.Above
}

// BracketHeight finds the native heights immediately below and above h.
// heights must be sorted ascending.
func BracketHeight(heights []int, h float64) (HeightBracket, error) {
	if len(heights) == 0 {
		return HeightBracket{}, DataRangeErrorf("no native heights available")
	}
	lo, hi := heights[0], heights[len(heights)-1]
	if math.IsNaN(h) || h < float64(lo) || h > float64(hi) {
		return HeightBracket{}, DataRangeErrorf("requested height is outside of allowed range: [%.2f, %.2f]", float64(lo), float64(hi))
	}
	if h == math.Trunc(h) && slices.Contains(heights, int(h)) {
		return HeightBracket{Below: int(h), Above: int(h)}, nil
	}
	b := HeightBracket{Below: lo, Above: hi}
	for _, nh := range heights {
		if float64(nh) < h {
			b.Below = nh
		}
		if float64(nh) > h {
			b.Above = nh
			break
		}
	}
	return b, nil
}

// InterpolateVertical combines the bracket series into a series at height h.
// stability is the inverse Monin-Obukhov length per timestep and is only read
// by VerticalStabilityPower.
func InterpolateVertical(method VerticalMethod, h float64, b HeightBracket, below, above, stability []float64) ([]float64, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}
	if len(below) != len(above) {
		return nil, fmt.Errorf("bracket series lengths differ: %d vs %d", len(below), len(above))
	}
	if method.NeedsStability() && len(stability) != len(below) {
		return nil, fmt.Errorf("stability series has %d rows, want %d", len(stability), len(below))
	}

	out := make([]float64, len(below))
	if b.Native() {
		copy(out, below)
		return out, nil
	}

	hb, ha := float64(b.Below), float64(b.Above)
	ref, refH := below, hb
	if b.Nearest(h) == b.Above {
		ref, refH = above, ha
	}

	switch method {
	case VerticalNearest:
		copy(out, ref)
	case VerticalLinear:
		f := (h - hb) / (ha - hb)
		for i := range out {
			out[i] = below[i] + (above[i]-below[i])*f
		}
	case VerticalNeutralPower:
		scale := math.Pow(h/refH, NeutralExponent)
		for i := range out {
			out[i] = ref[i] * scale
		}
	case VerticalStabilityPower:
		z := math.Sqrt(hb * ha)
		for i := range out {
			alpha := StabilityExponent(z, stability[i])
			out[i] = ref[i] * math.Pow(h/refH, alpha)
		}
	}
	return out, nil
}

// StabilityExponent returns the power-law shear exponent at height z for an
// inverse Monin-Obukhov length imol, from Monin-Obukhov similarity with
// Businger-Dyer stability functions. A missing imol gives NaN.
func StabilityExponent(z, imol float64) float64 {
	if math.IsNaN(imol) {
		return math.NaN()
	}
	zeta := math.Max(minZeta, math.Min(maxZeta, z*imol))

	var phi, psi float64
	if zeta >= 0 {
		phi = 1 + 5*zeta
		psi = -5 * zeta
	} else {
		x := math.Pow(1-16*zeta, 0.25)
		phi = 1 / x
		psi = 2*math.Log((1+x)/2) + math.Log((1+x*x)/2) - 2*math.Atan(x) + math.Pi/2
	}
	return phi / (math.Log(z/RoughnessLength) - psi)
}
