package model

import (
	"sort"
	"strconv"
	"time"

	"github.com/23skdu/granite-verify/internal/device"
	"github.com/23skdu/granite-verify/internal/metrics"
)

// expertForward runs the feed-forward block for one token: a plain
// SwiGLU FFN for dense configs, router + top-k weighted experts for MoE.
func (m *Model) expertForward(layerIdx int, lw *LayerWeights, x []float32) []float32 {
	cfg := m.cfg
	if !cfg.IsMOE() {
		return expertFFN(&lw.Experts[0], x, cfg.HiddenDim, cfg.Dim)
	}

	routeStart := time.Now()
	logits := device.MatVec(lw.Router, x, cfg.ExpertCount, cfg.Dim)
	indices, gates := topKGates(logits, cfg.ExpertUsedCount)
	metrics.RecordRouterLatency(time.Since(routeStart))
	metrics.RecordExpertSelection(strconv.Itoa(layerIdx), len(indices))

	out := make([]float32, cfg.Dim)
	for i, e := range indices {
		expertOut := expertFFN(&lw.Experts[e], x, cfg.HiddenDim, cfg.Dim)
		device.Add(out, expertOut, gates[i])
	}
	return out
}

func expertFFN(w *ExpertWeights, x []float32, hiddenDim, dim int) []float32 {
	gate := device.MatVec(w.Gate, x, hiddenDim, dim)
	up := device.MatVec(w.Up, x, hiddenDim, dim)
	activated := device.SwiGLU(gate, up)
	return device.MatVec(w.Down, activated, dim, hiddenDim)
}

// topKGates selects the k largest router logits and normalizes them
// with a softmax over the selected set. Ties break toward the lower
// expert index so routing stays deterministic.
func topKGates(logits []float32, k int) ([]int, []float32) {
	if k > len(logits) {
		k = len(logits)
	}
	order := make([]int, len(logits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return logits[order[a]] > logits[order[b]]
	})

	indices := order[:k]
	gates := make([]float32, k)
	for i, e := range indices {
		gates[i] = logits[e]
	}
	device.Softmax(gates)
	return indices, gates
}
