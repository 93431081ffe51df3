package model

import (
	"github.com/23skdu/granite-verify/internal/device"
	"github.com/23skdu/granite-verify/internal/rope"
)

// attention computes causal grouped-query attention for one sequence.
// Rotary tables are applied to Q and K per head before the score pass.
func (m *Model) attention(lw *LayerWeights, hidden [][]float32, batch int, tables *rope.Tables) [][]float32 {
	cfg := m.cfg
	seqLen := len(hidden)
	headDim := cfg.HeadDim
	kvDim := cfg.KVHeads * headDim
	group := cfg.Heads / cfg.KVHeads

	qs := make([][]float32, seqLen)
	ks := make([][]float32, seqLen)
	vs := make([][]float32, seqLen)
	for i := range hidden {
		normed := device.RMSNorm(hidden[i], lw.AttnNorm, cfg.Eps)
		qs[i] = device.MatVec(lw.AttnQ, normed, cfg.Dim, cfg.Dim)
		ks[i] = device.MatVec(lw.AttnK, normed, kvDim, cfg.Dim)
		vs[i] = device.MatVec(lw.AttnV, normed, kvDim, cfg.Dim)

		cos, sin := tables.RowF32(batch, i)
		for h := 0; h < cfg.Heads; h++ {
			device.ApplyRotary(qs[i][h*headDim:(h+1)*headDim], cos, sin)
		}
		for h := 0; h < cfg.KVHeads; h++ {
			device.ApplyRotary(ks[i][h*headDim:(h+1)*headDim], cos, sin)
		}
	}

	out := make([][]float32, seqLen)
	for i := 0; i < seqLen; i++ {
		merged := make([]float32, cfg.Dim)
		for h := 0; h < cfg.Heads; h++ {
			kvHead := h / group
			q := qs[i][h*headDim : (h+1)*headDim]

			scores := make([]float32, i+1)
			for j := 0; j <= i; j++ {
				k := ks[j][kvHead*headDim : (kvHead+1)*headDim]
				var dot float32
				for d := 0; d < headDim; d++ {
					dot += q[d] * k[d]
				}
				scores[j] = dot * m.attnScale
			}
			device.Softmax(scores)

			acc := merged[h*headDim : (h+1)*headDim]
			for j := 0; j <= i; j++ {
				v := vs[j][kvHead*headDim : (kvHead+1)*headDim]
				device.Add(acc, v, scores[j])
			}
		}
		out[i] = device.MatVec(lw.AttnO, merged, cfg.Dim, cfg.Dim)
	}
	return out
}
