// Package model implements a compact Granite-style mixture-of-experts
// decoder on the CPU kernels, with deterministic seeded weights. It
// exists to verify forward-pass numerics, in particular the behavior of
// rotary embedding scaling across configurations.
package model

import (
	"fmt"
	"math"
	"time"

	"github.com/23skdu/granite-verify/internal/config"
	"github.com/23skdu/granite-verify/internal/device"
	"github.com/23skdu/granite-verify/internal/logger"
	"github.com/23skdu/granite-verify/internal/metrics"
	"github.com/23skdu/granite-verify/internal/rope"
)

// Model is the decoder without the language-model head.
type Model struct {
	cfg     config.Config
	weights *Weights
	rot     *rope.Scaler

	embMult   float32
	attnScale float32
	resMult   float32
}

// New builds the decoder and its rotary scaler. Configuration errors,
// including malformed rope_scaling blocks, surface here.
func New(cfg config.Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	rot, err := rope.New(cfg)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:       cfg,
		weights:   newWeights(cfg),
		rot:       rot,
		embMult:   cfg.EmbeddingMultiplier,
		attnScale: cfg.AttentionMultiplier,
		resMult:   cfg.ResidualMultiplier,
	}
	if m.embMult == 0 {
		m.embMult = 1.0
	}
	if m.attnScale == 0 {
		m.attnScale = float32(1.0 / math.Sqrt(float64(cfg.HeadDim)))
	}
	if m.resMult == 0 {
		m.resMult = 1.0
	}

	logger.Log.Debug("model initialized",
		"dim", cfg.Dim, "layers", cfg.Layers, "heads", cfg.Heads,
		"experts", cfg.ExpertCount, "rope_scaling", rot.Kind())
	return m, nil
}

// Config returns the model configuration.
func (m *Model) Config() config.Config {
	return m.cfg
}

// Rotary exposes the rotary scaler for inspection.
func (m *Model) Rotary() *rope.Scaler {
	return m.rot
}

// Forward runs the decoder over a batch of token IDs and returns the
// final hidden states with shape (batch, seq, dim).
func (m *Model) Forward(inputIDs [][]int32) ([][][]float32, error) {
	start := time.Now()
	if len(inputIDs) == 0 {
		return nil, fmt.Errorf("model: empty input")
	}
	seqLen := len(inputIDs[0])
	positions := make([][]int32, len(inputIDs))
	for b, row := range inputIDs {
		if len(row) != seqLen {
			return nil, fmt.Errorf("model: ragged input: row %d has %d tokens, want %d", b, len(row), seqLen)
		}
		pos := make([]int32, seqLen)
		for i := range pos {
			pos[i] = int32(i)
		}
		positions[b] = pos
	}

	tables, err := m.rot.Tables(positions, rope.F32)
	if err != nil {
		return nil, err
	}

	out := make([][][]float32, len(inputIDs))
	for b, row := range inputIDs {
		hidden, err := m.forwardSequence(b, row, tables)
		if err != nil {
			return nil, err
		}
		out[b] = hidden
	}

	metrics.RecordForward(seqLen, time.Since(start))
	return out, nil
}

// forwardSequence runs one batch row through all layers and the final
// norm.
func (m *Model) forwardSequence(batch int, tokens []int32, tables *rope.Tables) ([][]float32, error) {
	cfg := m.cfg
	hidden := make([][]float32, len(tokens))
	for i, tok := range tokens {
		if int(tok) < 0 || int(tok) >= cfg.VocabSize {
			return nil, fmt.Errorf("model: token %d out of vocab range [0,%d)", tok, cfg.VocabSize)
		}
		h := make([]float32, cfg.Dim)
		copy(h, m.weights.TokenEmb[int(tok)*cfg.Dim:(int(tok)+1)*cfg.Dim])
		for j := range h {
			h[j] *= m.embMult
		}
		hidden[i] = h
	}

	for l := range m.weights.Layers {
		lw := &m.weights.Layers[l]

		attnOut := m.attention(lw, hidden, batch, tables)
		for i := range hidden {
			device.Add(hidden[i], attnOut[i], m.resMult)
		}

		for i := range hidden {
			normed := device.RMSNorm(hidden[i], lw.FfnNorm, cfg.Eps)
			ffnOut := m.expertForward(l, lw, normed)
			device.Add(hidden[i], ffnOut, m.resMult)
		}
	}

	for i := range hidden {
		hidden[i] = device.RMSNorm(hidden[i], m.weights.OutputNorm, cfg.Eps)
	}
	return hidden, nil
}
