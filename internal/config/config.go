package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Scaling kinds accepted in RopeScaling.Type. An empty type means no scaling.
const (
	RopeScalingLinear  = "linear"
	RopeScalingDynamic = "dynamic"
	RopeScalingYarn    = "yarn"
)

// RopeScaling describes the rope_scaling block of a model configuration.
// A nil *RopeScaling means unscaled rotary embeddings.
type RopeScaling struct {
	Type   string  `json:"type"`
	Factor float64 `json:"factor"`

	// Yarn shape parameters. Zero values select the conventional defaults
	// at construction time (orig max = max positions, beta 32/1).
	OriginalMaxPosition int     `json:"original_max_position_embeddings,omitempty"`
	BetaFast            float64 `json:"beta_fast,omitempty"`
	BetaSlow            float64 `json:"beta_slow,omitempty"`
	AttentionFactor     float64 `json:"attention_factor,omitempty"`
}

func (rs *RopeScaling) Validate() error {
	if rs == nil {
		return nil
	}
	switch strings.ToLower(rs.Type) {
	case RopeScalingLinear, RopeScalingDynamic, RopeScalingYarn:
	case "":
		return fmt.Errorf("rope_scaling: missing type")
	default:
		return fmt.Errorf("rope_scaling: unknown type %q", rs.Type)
	}
	if rs.Factor <= 0 {
		return fmt.Errorf("rope_scaling: factor must be positive, got %v", rs.Factor)
	}
	return nil
}

type Config struct {
	Dim       int `json:"hidden_size"`
	HiddenDim int `json:"intermediate_size"`
	Layers    int `json:"num_hidden_layers"`
	Heads     int `json:"num_attention_heads"`
	KVHeads   int `json:"num_key_value_heads"`
	HeadDim   int `json:"head_dim"`
	VocabSize int `json:"vocab_size"`
	SeqLen    int `json:"max_position_embeddings"`

	Eps       float32      `json:"rms_norm_eps"`
	RopeTheta float64      `json:"rope_theta"`
	Scaling   *RopeScaling `json:"rope_scaling,omitempty"`

	// Granite output multipliers. 1.0 everywhere reduces to a plain
	// llama-style decoder. A zero AttentionMultiplier selects the
	// conventional 1/sqrt(head_dim) attention scale.
	EmbeddingMultiplier float32 `json:"embedding_multiplier"`
	AttentionMultiplier float32 `json:"attention_multiplier"`
	ResidualMultiplier  float32 `json:"residual_multiplier"`
	LogitsScaling       float32 `json:"logits_scaling"`

	ExpertCount     int `json:"num_local_experts"`
	ExpertUsedCount int `json:"num_experts_per_tok"`

	Seed int64 `json:"-"`
}

func (c *Config) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d (must be positive)", c.Dim)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("invalid layers: %d (must be positive)", c.Layers)
	}
	if c.Heads <= 0 {
		return fmt.Errorf("invalid heads: %d (must be positive)", c.Heads)
	}
	if c.KVHeads <= 0 {
		return fmt.Errorf("invalid kv_heads: %d (must be positive)", c.KVHeads)
	}
	if c.KVHeads > c.Heads {
		return fmt.Errorf("invalid kv_heads: %d (must be <= heads: %d)", c.KVHeads, c.Heads)
	}
	if c.Heads%c.KVHeads != 0 {
		return fmt.Errorf("heads (%d) must be divisible by kv_heads (%d)", c.Heads, c.KVHeads)
	}
	if c.HeadDim <= 0 {
		return fmt.Errorf("invalid head_dim: %d (must be positive)", c.HeadDim)
	}
	if c.HeadDim%2 != 0 {
		return fmt.Errorf("invalid head_dim: %d (must be even for rotary embeddings)", c.HeadDim)
	}
	if c.Dim != c.Heads*c.HeadDim {
		return fmt.Errorf("dim mismatch: %d != heads(%d) * head_dim(%d)", c.Dim, c.Heads, c.HeadDim)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("invalid hidden_dim: %d (must be positive)", c.HiddenDim)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("invalid vocab_size: %d (must be positive)", c.VocabSize)
	}
	if c.SeqLen <= 0 {
		return fmt.Errorf("invalid seq_len: %d (must be positive)", c.SeqLen)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("invalid eps: %f (must be positive)", c.Eps)
	}
	if c.RopeTheta <= 0 {
		return fmt.Errorf("invalid rope_theta: %f (must be positive)", c.RopeTheta)
	}
	if err := c.Scaling.Validate(); err != nil {
		return err
	}
	if c.ExpertCount > 0 {
		if err := c.validateMOE(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateMOE() error {
	if c.ExpertUsedCount <= 0 {
		return fmt.Errorf("invalid num_experts_per_tok: %d (must be positive for MOE)", c.ExpertUsedCount)
	}
	if c.ExpertUsedCount > c.ExpertCount {
		return fmt.Errorf("num_experts_per_tok (%d) > num_local_experts (%d)", c.ExpertUsedCount, c.ExpertCount)
	}
	return nil
}

func (c *Config) IsMOE() bool {
	return c.ExpertCount > 0
}

// Default returns a small MoE decoder configuration suitable for
// forward-pass verification.
func Default() Config {
	return Config{
		Dim:       32,
		HiddenDim: 37,
		Layers:    2,
		Heads:     4,
		KVHeads:   4,
		HeadDim:   8,
		VocabSize: 99,
		SeqLen:    512,

		Eps:       1e-5,
		RopeTheta: 10000.0,

		EmbeddingMultiplier: 1.0,
		ResidualMultiplier:  1.0,
		LogitsScaling:       1.0,

		ExpertCount:     8,
		ExpertUsedCount: 2,

		Seed: 42,
	}
}

// Load reads a JSON model configuration from disk and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
