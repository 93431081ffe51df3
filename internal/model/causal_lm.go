package model

import (
	"fmt"

	"github.com/23skdu/granite-verify/internal/config"
	"github.com/23skdu/granite-verify/internal/device"
)

// ForCausalLM wraps the decoder with the language-model head.
type ForCausalLM struct {
	*Model
	logitsScale float32
}

func NewForCausalLM(cfg config.Config) (*ForCausalLM, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	scale := cfg.LogitsScaling
	if scale == 0 {
		scale = 1.0
	}
	return &ForCausalLM{Model: m, logitsScale: scale}, nil
}

// Logits returns vocabulary logits with shape (batch, seq, vocab).
// Granite divides head outputs by the logits scaling factor.
func (m *ForCausalLM) Logits(inputIDs [][]int32) ([][][]float32, error) {
	hidden, err := m.Forward(inputIDs)
	if err != nil {
		return nil, err
	}
	cfg := m.Config()
	out := make([][][]float32, len(hidden))
	for b, seq := range hidden {
		rows := make([][]float32, len(seq))
		for i, h := range seq {
			logits := device.MatVec(m.weights.Output, h, cfg.VocabSize, cfg.Dim)
			for j := range logits {
				logits[j] /= m.logitsScale
			}
			device.ComputeActivationStats("logits", logits)
			rows[i] = logits
		}
		out[b] = rows
	}
	return out, nil
}

// LastLogits returns the logits of the final position for a single
// sequence, the quantity the generation loop consumes.
func (m *ForCausalLM) LastLogits(tokens []int32) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("model: empty sequence")
	}
	logits, err := m.Logits([][]int32{tokens})
	if err != nil {
		return nil, err
	}
	return logits[0][len(tokens)-1], nil
}
