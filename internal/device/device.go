// Package device holds the float32 CPU reference kernels used by the
// model forward pass.
package device

import (
	"math"

	"github.com/23skdu/granite-verify/internal/metrics"
)

// MatVec computes out = W*x for a row-major weight matrix W with shape
// (rows, cols) and a vector x of length cols.
func MatVec(w []float32, x []float32, rows, cols int) []float32 {
	out := make([]float32, rows)
	for r := 0; r < rows; r++ {
		var sum float32
		row := w[r*cols : (r+1)*cols]
		for c, v := range row {
			sum += v * x[c]
		}
		out[r] = sum
	}
	return out
}

// RMSNorm normalizes x by its root mean square and applies the gain
// vector, returning a new slice.
func RMSNorm(x, gain []float32, eps float32) []float32 {
	var ss float64
	for _, v := range x {
		ss += float64(v) * float64(v)
	}
	inv := float32(1.0 / math.Sqrt(ss/float64(len(x))+float64(eps)))
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v * inv * gain[i]
	}
	return out
}

// Softmax computes a numerically stable softmax in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - max))
		x[i] = float32(e)
		sum += e
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / sum)
	}
}

// SiLU applies x*sigmoid(x) elementwise, returning a new slice.
func SiLU(x []float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v / (1.0 + float32(math.Exp(float64(-v))))
	}
	return out
}

// SwiGLU computes SiLU(gate)*up elementwise.
func SwiGLU(gate, up []float32) []float32 {
	out := make([]float32, len(gate))
	for i, g := range gate {
		out[i] = g / (1.0 + float32(math.Exp(float64(-g)))) * up[i]
	}
	return out
}

// Add accumulates src into dst, optionally scaling src first.
func Add(dst, src []float32, scale float32) {
	for i, v := range src {
		dst[i] += v * scale
	}
}

// ApplyRotary rotates one head vector in place using split-halves
// cos/sin rows of the head dimension:
//
//	x'[i]      = x[i]*cos[i]      - x[i+half]*sin[i]
//	x'[i+half] = x[i+half]*cos[i+half] + x[i]*sin[i+half]
func ApplyRotary(x, cos, sin []float32) {
	half := len(x) / 2
	for i := 0; i < half; i++ {
		a, b := x[i], x[i+half]
		x[i] = a*cos[i] - b*sin[i]
		x[i+half] = b*cos[i+half] + a*sin[i+half]
	}
}

// ActivationStats summarizes a tensor for audit logging.
type ActivationStats struct {
	Max  float32
	Min  float32
	Mean float32
	RMS  float32
	NaNs int
	Infs int
}

// ComputeActivationStats scans data and records NaN/Inf counts to the
// instability metrics under the given tensor name.
func ComputeActivationStats(name string, data []float32) ActivationStats {
	stats := ActivationStats{}
	if len(data) == 0 {
		return stats
	}
	stats.Max = data[0]
	stats.Min = data[0]
	var mean, rms float64
	for _, v := range data {
		if v > stats.Max {
			stats.Max = v
		}
		if v < stats.Min {
			stats.Min = v
		}
		mean += float64(v)
		rms += float64(v) * float64(v)
		if math.IsNaN(float64(v)) {
			stats.NaNs++
		}
		if math.IsInf(float64(v), 0) {
			stats.Infs++
		}
	}
	n := float64(len(data))
	stats.Mean = float32(mean / n)
	stats.RMS = float32(math.Sqrt(rms / n))

	if stats.NaNs > 0 || stats.Infs > 0 {
		metrics.RecordNumericalInstability(name, stats.NaNs, stats.Infs)
	}
	return stats
}
