package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Eps != 1e-5 {
		t.Errorf("expected Eps 1e-5, got %v", cfg.Eps)
	}
	if cfg.RopeTheta != 10000.0 {
		t.Errorf("expected RopeTheta 10000.0, got %v", cfg.RopeTheta)
	}
	if cfg.Dim != cfg.Heads*cfg.HeadDim {
		t.Errorf("default dim %d != heads*head_dim %d", cfg.Dim, cfg.Heads*cfg.HeadDim)
	}
	if !cfg.IsMOE() {
		t.Error("default config should be MoE")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"zero dim", func(c *Config) { c.Dim = 0 }, true},
		{"zero layers", func(c *Config) { c.Layers = 0 }, true},
		{"zero heads", func(c *Config) { c.Heads = 0 }, true},
		{"kv heads above heads", func(c *Config) { c.KVHeads = c.Heads + 1 }, true},
		{"heads not divisible by kv heads", func(c *Config) { c.Heads = 4; c.KVHeads = 3 }, true},
		{"odd head dim", func(c *Config) { c.HeadDim = 7 }, true},
		{"dim mismatch", func(c *Config) { c.Dim = 64 }, true},
		{"zero vocab", func(c *Config) { c.VocabSize = 0 }, true},
		{"zero seq len", func(c *Config) { c.SeqLen = 0 }, true},
		{"zero eps", func(c *Config) { c.Eps = 0 }, true},
		{"zero theta", func(c *Config) { c.RopeTheta = 0 }, true},
		{"experts used above count", func(c *Config) { c.ExpertUsedCount = c.ExpertCount + 1 }, true},
		{"dense config", func(c *Config) { c.ExpertCount = 0; c.ExpertUsedCount = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRopeScalingValidate(t *testing.T) {
	tests := []struct {
		name    string
		scaling *RopeScaling
		wantErr bool
	}{
		{"nil means unscaled", nil, false},
		{"linear", &RopeScaling{Type: "linear", Factor: 2}, false},
		{"dynamic", &RopeScaling{Type: "dynamic", Factor: 8}, false},
		{"yarn", &RopeScaling{Type: "yarn", Factor: 16}, false},
		{"uppercase type", &RopeScaling{Type: "LINEAR", Factor: 2}, false},
		{"unknown type", &RopeScaling{Type: "longrope", Factor: 2}, true},
		{"missing type", &RopeScaling{Factor: 2}, true},
		{"missing factor", &RopeScaling{Type: "linear"}, true},
		{"negative factor", &RopeScaling{Type: "yarn", Factor: -3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scaling.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScalingRejectedThroughConfig(t *testing.T) {
	cfg := Default()
	cfg.Scaling = &RopeScaling{Type: "bogus", Factor: 4}
	if err := cfg.Validate(); err == nil {
		t.Error("expected config validation to surface rope_scaling error")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scaling = &RopeScaling{Type: "dynamic", Factor: 10}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Dim != cfg.Dim || loaded.VocabSize != cfg.VocabSize {
		t.Errorf("loaded config differs: %+v", loaded)
	}
	if loaded.Scaling == nil || loaded.Scaling.Type != "dynamic" || loaded.Scaling.Factor != 10 {
		t.Errorf("rope_scaling did not round-trip: %+v", loaded.Scaling)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"hidden_size": -1}`), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject invalid config")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
