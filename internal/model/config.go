package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config mirrors the fields of a Hugging Face GPT-2 family config.json that
// the forward pass needs. PadTokenID is a pointer because most causal models
// leave it unset.
type Config struct {
	ModelType        string  `json:"model_type"`
	VocabSize        int     `json:"vocab_size"`
	NEmbd            int     `json:"n_embd"`
	NHead            int     `json:"n_head"`
	NLayer           int     `json:"n_layer"`
	NPositions       int     `json:"n_positions"`
	LayerNormEpsilon float64 `json:"layer_norm_epsilon"`
	EOSTokenID       *int    `json:"eos_token_id"`
	PadTokenID       *int    `json:"pad_token_id"`
}

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config.json: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ModelType != "" && c.ModelType != "gpt2" {
		return fmt.Errorf("unsupported model_type %q (gpt2 family only)", c.ModelType)
	}
	if c.VocabSize <= 0 || c.NEmbd <= 0 || c.NHead <= 0 || c.NLayer <= 0 || c.NPositions <= 0 {
		return fmt.Errorf("config.json: missing or invalid model dimensions")
	}
	if c.NEmbd%c.NHead != 0 {
		return fmt.Errorf("config.json: n_embd %d not divisible by n_head %d", c.NEmbd, c.NHead)
	}
	if c.LayerNormEpsilon <= 0 {
		c.LayerNormEpsilon = 1e-5
	}
	return nil
}
