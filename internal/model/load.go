package model

import (
	"fmt"
	"path/filepath"

	"github.com/attnlens/attnlens/internal/safetensors"
	"github.com/attnlens/attnlens/internal/tensor"
)

// LoadSafetensors reads a GPT-2 family checkpoint (model.safetensors) from an
// artifact directory. Checkpoints exported from GPT2LMHeadModel name tensors
// either bare ("wte.weight") or prefixed ("transformer.wte.weight"); both are
// accepted. Conv1D weights are transposed to [out x in] at load time.
func LoadSafetensors(dir string, cfg *Config) (*Model, error) {
	st, err := safetensors.Open(filepath.Join(dir, "model.safetensors"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	resolve := func(name string) string {
		if _, ok := st.Tensor(name); ok {
			return name
		}
		return "transformer." + name
	}

	m := &Model{
		Config:     cfg,
		Layers:     make([]Layer, cfg.NLayer),
		PadTokenID: -1,
		EOSTokenID: -1,
	}
	if cfg.PadTokenID != nil {
		m.PadTokenID = *cfg.PadTokenID
	}
	if cfg.EOSTokenID != nil {
		m.EOSTokenID = *cfg.EOSTokenID
	}

	if m.TokenEmb, err = tensor.LoadSafetensorsMat(st, resolve("wte.weight")); err != nil {
		return nil, err
	}
	if m.PosEmb, err = tensor.LoadSafetensorsMat(st, resolve("wpe.weight")); err != nil {
		return nil, err
	}
	if m.TokenEmb.R != cfg.VocabSize || m.TokenEmb.C != cfg.NEmbd {
		return nil, fmt.Errorf("wte.weight: shape %dx%d does not match config", m.TokenEmb.R, m.TokenEmb.C)
	}

	for i := 0; i < cfg.NLayer; i++ {
		layer := &m.Layers[i]
		prefix := fmt.Sprintf("h.%d.", i)

		if layer.LN1Weight, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"ln_1.weight")); err != nil {
			return nil, err
		}
		if layer.LN1Bias, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"ln_1.bias")); err != nil {
			return nil, err
		}
		if layer.AttnQKV, err = tensor.LoadSafetensorsMatT(st, resolve(prefix+"attn.c_attn.weight")); err != nil {
			return nil, err
		}
		if layer.AttnQKVBias, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"attn.c_attn.bias")); err != nil {
			return nil, err
		}
		if layer.AttnProj, err = tensor.LoadSafetensorsMatT(st, resolve(prefix+"attn.c_proj.weight")); err != nil {
			return nil, err
		}
		if layer.AttnProjBias, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"attn.c_proj.bias")); err != nil {
			return nil, err
		}
		if layer.LN2Weight, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"ln_2.weight")); err != nil {
			return nil, err
		}
		if layer.LN2Bias, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"ln_2.bias")); err != nil {
			return nil, err
		}
		if layer.MLPUp, err = tensor.LoadSafetensorsMatT(st, resolve(prefix+"mlp.c_fc.weight")); err != nil {
			return nil, err
		}
		if layer.MLPUpBias, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"mlp.c_fc.bias")); err != nil {
			return nil, err
		}
		if layer.MLPDown, err = tensor.LoadSafetensorsMatT(st, resolve(prefix+"mlp.c_proj.weight")); err != nil {
			return nil, err
		}
		if layer.MLPDownBias, err = tensor.LoadSafetensorsVec(st, resolve(prefix+"mlp.c_proj.bias")); err != nil {
			return nil, err
		}
	}

	if m.LNFinalWeight, err = tensor.LoadSafetensorsVec(st, resolve("ln_f.weight")); err != nil {
		return nil, err
	}
	if m.LNFinalBias, err = tensor.LoadSafetensorsVec(st, resolve("ln_f.bias")); err != nil {
		return nil, err
	}

	return m, nil
}

// NewRandom constructs a model with reproducible pseudo-random weights for
// tests and benchmarks.
func NewRandom(cfg *Config, seed int64) *Model {
	embd := cfg.NEmbd
	ffn := 4 * embd
	m := &Model{
		Config:        cfg,
		Layers:        make([]Layer, cfg.NLayer),
		LNFinalWeight: ones(embd),
		LNFinalBias:   make([]float32, embd),
		PadTokenID:    -1,
		EOSTokenID:    -1,
	}
	if cfg.PadTokenID != nil {
		m.PadTokenID = *cfg.PadTokenID
	}
	if cfg.EOSTokenID != nil {
		m.EOSTokenID = *cfg.EOSTokenID
	}

	tok := tensor.NewMat(cfg.VocabSize, embd)
	tensor.FillRand(&tok, seed+11)
	m.TokenEmb = &tok
	pos := tensor.NewMat(cfg.NPositions, embd)
	tensor.FillRand(&pos, seed+23)
	m.PosEmb = &pos

	for i := range m.Layers {
		layer := &m.Layers[i]
		layer.LN1Weight = ones(embd)
		layer.LN1Bias = make([]float32, embd)
		layer.LN2Weight = ones(embd)
		layer.LN2Bias = make([]float32, embd)

		qkv := tensor.NewMat(3*embd, embd)
		tensor.FillRand(&qkv, seed+int64(i)*7+1)
		layer.AttnQKV = &qkv
		layer.AttnQKVBias = make([]float32, 3*embd)

		proj := tensor.NewMat(embd, embd)
		tensor.FillRand(&proj, seed+int64(i)*7+2)
		layer.AttnProj = &proj
		layer.AttnProjBias = make([]float32, embd)

		up := tensor.NewMat(ffn, embd)
		tensor.FillRand(&up, seed+int64(i)*7+3)
		layer.MLPUp = &up
		layer.MLPUpBias = make([]float32, ffn)

		down := tensor.NewMat(embd, ffn)
		tensor.FillRand(&down, seed+int64(i)*7+4)
		layer.MLPDown = &down
		layer.MLPDownBias = make([]float32, embd)
	}
	return m
}

func ones(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
