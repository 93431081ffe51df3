package rope

import "math"

// Yarn interpolates between the unscaled ("extrapolated") and the
// linearly interpolated frequency for every dimension pair, with a ramp
// placed over the dimensions whose wavelengths sit between betaFast and
// betaSlow rotations of the original context window. High-frequency
// dimensions keep their base frequency, low-frequency dimensions are
// divided by the scaling factor, the band in between blends the two.
type yarnParams struct {
	origMax  int
	betaFast float64
	betaSlow float64
}

func applyYarn(invFreq []float64, base, factor float64, p yarnParams) {
	if len(invFreq) == 0 || factor == 1 {
		return
	}

	dim := float64(len(invFreq) * 2)
	origCtx := float64(p.origMax)

	correctionDim := func(numRotations float64) float64 {
		numer := origCtx / (numRotations * 2 * math.Pi)
		if numer <= 0 {
			return 0
		}
		return (dim * math.Log(numer)) / (2 * math.Log(base))
	}

	low := math.Floor(correctionDim(p.betaFast))
	high := math.Ceil(correctionDim(p.betaSlow))
	if low < 0 {
		low = 0
	}
	if high > dim-1 {
		high = dim - 1
	}
	if low == high {
		high += 0.001
	}

	for i, f := range invFreq {
		ramp := (float64(i) - low) / (high - low)
		if ramp < 0 {
			ramp = 0
		}
		if ramp > 1 {
			ramp = 1
		}
		interp := f / factor
		invFreq[i] = interp*ramp + f*(1-ramp)
	}
}

// yarnAttentionScale is the default attention temperature for a yarn
// scaling factor when the configuration does not pin one.
func yarnAttentionScale(factor float64) float64 {
	if factor <= 1 {
		return 1
	}
	return 0.1*math.Log(factor) + 1
}
