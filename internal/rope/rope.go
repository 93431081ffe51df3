// Package rope computes rotary position embedding tables for the
// attention layers, including linear, dynamic NTK and yarn context
// extension scaling.
package rope

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/23skdu/granite-verify/internal/config"
	"github.com/23skdu/granite-verify/internal/logger"
	"github.com/23skdu/granite-verify/internal/metrics"
)

// DType selects the numeric precision of the emitted tables. It replaces
// the dtype probe on a reference tensor with an explicit parameter.
type DType int

const (
	F32 DType = iota
	F64
)

func (d DType) String() string {
	if d == F64 {
		return "f64"
	}
	return "f32"
}

// Tables holds cos/sin rotation tables with shape (batch, seq, dim) in
// split-halves layout: entry i and entry i+dim/2 carry the same angle.
type Tables struct {
	DType  DType
	Batch  int
	SeqLen int
	Dim    int
	Cos    []float64
	Sin    []float64
}

func (t *Tables) index(b, s, d int) int {
	return (b*t.SeqLen+s)*t.Dim + d
}

// CosAt returns the cos entry for batch b, sequence position s, dim d.
func (t *Tables) CosAt(b, s, d int) float64 {
	return t.Cos[t.index(b, s, d)]
}

// SinAt returns the sin entry for batch b, sequence position s, dim d.
func (t *Tables) SinAt(b, s, d int) float64 {
	return t.Sin[t.index(b, s, d)]
}

// Row returns the cos and sin vectors for one position.
func (t *Tables) Row(b, s int) ([]float64, []float64) {
	start := t.index(b, s, 0)
	return t.Cos[start : start+t.Dim], t.Sin[start : start+t.Dim]
}

// RowF32 returns one position's tables narrowed to float32 for the
// float32 attention kernels.
func (t *Tables) RowF32(b, s int) ([]float32, []float32) {
	cos64, sin64 := t.Row(b, s)
	cos := make([]float32, t.Dim)
	sin := make([]float32, t.Dim)
	for i := range cos64 {
		cos[i] = float32(cos64[i])
		sin[i] = float32(sin64[i])
	}
	return cos, sin
}

// Scaler produces rotary embedding tables for one model configuration.
// Construction computes the base inverse frequency vector
//
//	invFreq[i] = 1 / base^(2i/headDim)  for i in [0, headDim/2)
//
// and bakes in the configured scaling policy. Dynamic NTK scaling keeps
// an extended inverse frequency vector alongside the base one; selection
// between the two happens per call from the requested sequence length.
type Scaler struct {
	kind    string // "" for unscaled
	headDim int
	base    float64
	maxPos  int
	factor  float64

	// attnScale multiplies the final cos/sin values. 1.0 except for yarn.
	attnScale float64

	invFreq []float64

	// Dynamic scaling extension state. A one-way transition: once a call
	// exceeds maxPos the extended vector exists for the rest of the
	// scaler's lifetime, recomputed only when a longer sequence arrives.
	mu           sync.Mutex
	extInvFreq   []float64
	effectiveMax int
}

// New builds a Scaler from the model configuration. Unknown scaling
// types and missing factors fail here, not at call time.
func New(cfg config.Config) (*Scaler, error) {
	if cfg.HeadDim <= 0 || cfg.HeadDim%2 != 0 {
		return nil, fmt.Errorf("rope: head_dim must be positive and even, got %d", cfg.HeadDim)
	}
	if cfg.RopeTheta <= 0 {
		return nil, fmt.Errorf("rope: base must be positive, got %v", cfg.RopeTheta)
	}
	if cfg.SeqLen <= 0 {
		return nil, fmt.Errorf("rope: max_position_embeddings must be positive, got %d", cfg.SeqLen)
	}

	s := &Scaler{
		headDim:   cfg.HeadDim,
		base:      cfg.RopeTheta,
		maxPos:    cfg.SeqLen,
		factor:    1.0,
		attnScale: 1.0,
		invFreq:   inverseFrequencies(cfg.RopeTheta, cfg.HeadDim),
	}

	rs := cfg.Scaling
	if rs == nil {
		return s, nil
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	s.kind = strings.ToLower(rs.Type)
	s.factor = rs.Factor

	if s.kind == config.RopeScalingYarn {
		p := yarnParams{
			origMax:  rs.OriginalMaxPosition,
			betaFast: rs.BetaFast,
			betaSlow: rs.BetaSlow,
		}
		if p.origMax <= 0 {
			p.origMax = cfg.SeqLen
		}
		if p.betaFast <= 0 {
			p.betaFast = 32
		}
		if p.betaSlow <= 0 {
			p.betaSlow = 1
		}
		applyYarn(s.invFreq, s.base, s.factor, p)
		s.attnScale = rs.AttentionFactor
		if s.attnScale <= 0 {
			s.attnScale = yarnAttentionScale(s.factor)
		}
	}

	return s, nil
}

// Kind returns the configured scaling kind, empty for unscaled.
func (s *Scaler) Kind() string {
	return s.kind
}

// AttentionScale returns the multiplicative temperature applied to the
// tables. 1.0 for every kind except yarn.
func (s *Scaler) AttentionScale() float64 {
	return s.attnScale
}

// InvFreq returns a copy of the inverse frequency vector currently in
// effect: the extended vector once dynamic scaling has triggered, the
// base vector otherwise.
func (s *Scaler) InvFreq() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.invFreq
	if s.extInvFreq != nil {
		src = s.extInvFreq
	}
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// Tables computes cos/sin tables for the given position IDs. Output
// shape is (len(positionIDs), seq, headDim) where seq is the common row
// length. Same scaler state and same positions yield bit-identical
// output.
func (s *Scaler) Tables(positionIDs [][]int32, dtype DType) (*Tables, error) {
	start := time.Now()
	if len(positionIDs) == 0 {
		return nil, fmt.Errorf("rope: empty position ids")
	}
	seqLen := len(positionIDs[0])
	maxPosSeen := int32(-1)
	for b, row := range positionIDs {
		if len(row) != seqLen {
			return nil, fmt.Errorf("rope: ragged position ids: row %d has %d entries, want %d", b, len(row), seqLen)
		}
		for _, p := range row {
			if p < 0 {
				return nil, fmt.Errorf("rope: negative position id %d", p)
			}
			if p > maxPosSeen {
				maxPosSeen = p
			}
		}
	}

	freqs := s.frequenciesFor(int(maxPosSeen) + 1)

	half := s.headDim / 2
	t := &Tables{
		DType:  dtype,
		Batch:  len(positionIDs),
		SeqLen: seqLen,
		Dim:    s.headDim,
		Cos:    make([]float64, len(positionIDs)*seqLen*s.headDim),
		Sin:    make([]float64, len(positionIDs)*seqLen*s.headDim),
	}

	for b, row := range positionIDs {
		for si, p := range row {
			pos := float64(p)
			if s.kind == config.RopeScalingLinear {
				pos = pos / s.factor
			}
			base := t.index(b, si, 0)
			for i := 0; i < half; i++ {
				angle := pos * freqs[i]
				c := math.Cos(angle) * s.attnScale
				sn := math.Sin(angle) * s.attnScale
				if dtype == F32 {
					c = float64(float32(c))
					sn = float64(float32(sn))
				}
				t.Cos[base+i] = c
				t.Cos[base+i+half] = c
				t.Sin[base+i] = sn
				t.Sin[base+i+half] = sn
			}
		}
	}

	kind := s.kind
	if kind == "" {
		kind = "none"
	}
	metrics.RecordRopeTableBuild(kind, time.Since(start))
	return t, nil
}

// frequenciesFor returns the inverse frequency vector to use for a call
// covering seqLen positions. Only dynamic scaling depends on seqLen.
func (s *Scaler) frequenciesFor(seqLen int) []float64 {
	if s.kind != config.RopeScalingDynamic || seqLen <= s.maxPos {
		return s.invFreq
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seqLen > s.effectiveMax {
		adjusted := s.base * math.Pow(
			s.factor*float64(seqLen)/float64(s.maxPos)-(s.factor-1),
			float64(s.headDim)/float64(s.headDim-2),
		)
		s.extInvFreq = inverseFrequencies(adjusted, s.headDim)
		s.effectiveMax = seqLen
		metrics.RecordRopeExtension()
		logger.Log.Debug("rope dynamic extension",
			"seq_len", seqLen, "max_pos", s.maxPos, "adjusted_base", adjusted)
	}
	return s.extInvFreq
}

func inverseFrequencies(base float64, headDim int) []float64 {
	half := headDim / 2
	inv := make([]float64, half)
	for i := 0; i < half; i++ {
		inv[i] = 1.0 / math.Pow(base, float64(2*i)/float64(headDim))
	}
	return inv
}
