package model

import (
	"math/rand"

	"github.com/23skdu/granite-verify/internal/config"
)

// initializerRange matches the usual transformer init stddev.
const initializerRange = 0.02

// ExpertWeights holds one expert's SwiGLU projection matrices.
type ExpertWeights struct {
	Gate []float32 // hidden x dim
	Up   []float32 // hidden x dim
	Down []float32 // dim x hidden
}

// LayerWeights holds one decoder layer.
type LayerWeights struct {
	AttnNorm []float32
	FfnNorm  []float32

	AttnQ []float32 // (heads*headDim) x dim
	AttnK []float32 // (kvHeads*headDim) x dim
	AttnV []float32 // (kvHeads*headDim) x dim
	AttnO []float32 // dim x (heads*headDim)

	Router  []float32 // experts x dim
	Experts []ExpertWeights
}

// Weights is the full parameter set of the reference decoder.
type Weights struct {
	TokenEmb   []float32 // vocab x dim
	OutputNorm []float32
	Output     []float32 // vocab x dim
	Layers     []LayerWeights
}

// newWeights draws every parameter from a single seeded source in a
// fixed order, so equal seeds give bit-identical weights.
func newWeights(cfg config.Config) *Weights {
	rng := rand.New(rand.NewSource(cfg.Seed))

	normal := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(rng.NormFloat64() * initializerRange)
		}
		return out
	}
	ones := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	w := &Weights{
		TokenEmb:   normal(cfg.VocabSize * cfg.Dim),
		OutputNorm: ones(cfg.Dim),
		Output:     normal(cfg.VocabSize * cfg.Dim),
		Layers:     make([]LayerWeights, cfg.Layers),
	}

	kvDim := cfg.KVHeads * cfg.HeadDim
	for l := range w.Layers {
		lw := LayerWeights{
			AttnNorm: ones(cfg.Dim),
			FfnNorm:  ones(cfg.Dim),
			AttnQ:    normal(cfg.Dim * cfg.Dim),
			AttnK:    normal(kvDim * cfg.Dim),
			AttnV:    normal(kvDim * cfg.Dim),
			AttnO:    normal(cfg.Dim * cfg.Dim),
		}
		if cfg.IsMOE() {
			lw.Router = normal(cfg.ExpertCount * cfg.Dim)
			lw.Experts = make([]ExpertWeights, cfg.ExpertCount)
			for e := range lw.Experts {
				lw.Experts[e] = ExpertWeights{
					Gate: normal(cfg.HiddenDim * cfg.Dim),
					Up:   normal(cfg.HiddenDim * cfg.Dim),
					Down: normal(cfg.Dim * cfg.HiddenDim),
				}
			}
		} else {
			lw.Experts = []ExpertWeights{{
				Gate: normal(cfg.HiddenDim * cfg.Dim),
				Up:   normal(cfg.HiddenDim * cfg.Dim),
				Down: normal(cfg.Dim * cfg.HiddenDim),
			}}
		}
		w.Layers[l] = lw
	}

	return w
}
