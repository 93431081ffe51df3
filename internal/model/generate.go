package model

import (
	"math"
	"math/rand"
	"sort"

	"github.com/23skdu/granite-verify/internal/metrics"
)

type SamplerConfig struct {
	Temperature float64 // 0 selects greedy decoding
	TopK        int
	TopP        float64
	Seed        int64
}

// Generate produces count tokens continuing the prompt. Greedy when
// Temperature is zero, otherwise seeded sampling; either way the output
// is deterministic for a fixed config and prompt.
func (m *ForCausalLM) Generate(prompt []int32, count int, cfg SamplerConfig) ([]int32, error) {
	tokens := append([]int32(nil), prompt...)
	result := make([]int32, 0, count)

	for len(result) < count {
		logits, err := m.LastLogits(tokens)
		if err != nil {
			return result, err
		}
		next := sampleToken(logits, cfg, len(tokens))
		result = append(result, next)
		tokens = append(tokens, next)
	}

	metrics.RecordGeneratedTokens(len(result))
	return result, nil
}

// sampleToken picks the next token from logits. The rng is reseeded per
// step from the sampler seed and the sequence length, so a generation
// run replays exactly.
func sampleToken(logits []float32, cfg SamplerConfig, step int) int32 {
	if cfg.Temperature <= 0 {
		return int32(argMax(logits))
	}

	scaled := make([]float32, len(logits))
	for i, l := range logits {
		scaled[i] = float32(float64(l) / cfg.Temperature)
	}

	type candidate struct {
		token int
		prob  float64
	}
	probs := softmax64(scaled)
	candidates := make([]candidate, 0, len(probs))
	for i, p := range probs {
		candidates = append(candidates, candidate{token: i, prob: p})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].prob > candidates[b].prob
	})

	if cfg.TopK > 0 && cfg.TopK < len(candidates) {
		candidates = candidates[:cfg.TopK]
	}
	if cfg.TopP > 0 && cfg.TopP < 1 {
		cum := 0.0
		cut := len(candidates)
		for i, c := range candidates {
			cum += c.prob
			if cum >= cfg.TopP {
				cut = i + 1
				break
			}
		}
		candidates = candidates[:cut]
	}

	total := 0.0
	for _, c := range candidates {
		total += c.prob
	}

	r := rand.New(rand.NewSource(cfg.Seed + int64(step)))
	threshold := r.Float64() * total
	cum := 0.0
	for _, c := range candidates {
		cum += c.prob
		if cum >= threshold {
			return int32(c.token)
		}
	}
	return int32(candidates[len(candidates)-1].token)
}

func argMax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

func softmax64(x []float32) []float64 {
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		e := math.Exp(float64(v - max))
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
