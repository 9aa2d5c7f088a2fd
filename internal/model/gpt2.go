package model

import (
	"context"
	"fmt"
	"math"

	"github.com/attnlens/attnlens/internal/tensor"
)

// Layer holds the weights of one GPT-2 transformer block. Projection
// matrices are stored row-major [out x in] so MatVec applies them directly.
type Layer struct {
	LN1Weight, LN1Bias []float32
	LN2Weight, LN2Bias []float32

	AttnQKV      *tensor.Mat // [3*embd x embd] fused q,k,v projection
	AttnQKVBias  []float32
	AttnProj     *tensor.Mat // [embd x embd]
	AttnProjBias []float32

	MLPUp       *tensor.Mat // [ffn x embd]
	MLPUpBias   []float32
	MLPDown     *tensor.Mat // [embd x ffn]
	MLPDownBias []float32
}

// Model is a GPT-2 family decoder. The LM head shares weights with the token
// embedding, as in the reference checkpoints.
type Model struct {
	Config *Config

	TokenEmb *tensor.Mat // [vocab x embd]
	PosEmb   *tensor.Mat // [n_positions x embd]
	Layers   []Layer
	LNFinalWeight []float32
	LNFinalBias   []float32

	// PadTokenID is -1 when the checkpoint leaves it unset; callers default
	// it to the tokenizer's eos id before generation.
	PadTokenID int
	EOSTokenID int
}

// ForwardOptions selects which intermediate activations Forward records.
type ForwardOptions struct {
	CaptureAttentions   bool
	CaptureHiddenStates bool
	// LastLogitsOnly skips the LM head for all but the final position.
	LastLogitsOnly bool
}

// ForwardResult holds the outputs of a full-sequence forward pass.
//
// Attentions is indexed [layer][head][query][key]; each per-head matrix is
// seq_len x seq_len, post-softmax, with zero weight on future positions.
// HiddenStates is indexed [layer][position][dim] and has n_layer+1 entries:
// the embedding output first, then each block's output.
type ForwardResult struct {
	Logits       [][]float32
	Attentions   [][][][]float32
	HiddenStates [][][]float32
}

// Forward runs the model over the whole token sequence at once.
func (m *Model) Forward(ids []int, opts ForwardOptions) (*ForwardResult, error) {
	seqLen := len(ids)
	if seqLen == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}
	if seqLen > m.Config.NPositions {
		return nil, fmt.Errorf("sequence length %d exceeds model context %d", seqLen, m.Config.NPositions)
	}
	for _, id := range ids {
		if id < 0 || id >= m.Config.VocabSize {
			return nil, fmt.Errorf("token id out of range: %d", id)
		}
	}

	embd := m.Config.NEmbd
	nHead := m.Config.NHead
	headDim := embd / nHead
	eps := float32(m.Config.LayerNormEpsilon)

	// x[t] is the residual stream at position t.
	x := make([][]float32, seqLen)
	for t, id := range ids {
		row := make([]float32, embd)
		copy(row, m.TokenEmb.Row(id))
		tensor.Add(row, m.PosEmb.Row(t))
		x[t] = row
	}

	res := &ForwardResult{}
	if opts.CaptureHiddenStates {
		res.HiddenStates = make([][][]float32, 0, len(m.Layers)+1)
		res.HiddenStates = append(res.HiddenStates, copyStates(x))
	}
	if opts.CaptureAttentions {
		res.Attentions = make([][][][]float32, 0, len(m.Layers))
	}

	normed := make([][]float32, seqLen)
	for t := range normed {
		normed[t] = make([]float32, embd)
	}
	qkv := make([][]float32, seqLen)
	for t := range qkv {
		qkv[t] = make([]float32, 3*embd)
	}
	attnOut := make([]float32, embd)
	proj := make([]float32, embd)
	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	for li := range m.Layers {
		layer := &m.Layers[li]

		// Attention block: pre-norm, fused qkv, per-head causal attention,
		// output projection, residual.
		for t := 0; t < seqLen; t++ {
			tensor.LayerNorm(normed[t], x[t], layer.LN1Weight, layer.LN1Bias, eps)
			tensor.MatVec(qkv[t], layer.AttnQKV, normed[t])
			tensor.Add(qkv[t], layer.AttnQKVBias)
		}

		var layerAttn [][][]float32
		if opts.CaptureAttentions {
			layerAttn = make([][][]float32, nHead)
			for h := range layerAttn {
				layerAttn[h] = make([][]float32, seqLen)
				for q := range layerAttn[h] {
					layerAttn[h][q] = make([]float32, seqLen)
				}
			}
		}

		for t := 0; t < seqLen; t++ {
			for h := 0; h < nHead; h++ {
				qh := qkv[t][h*headDim : (h+1)*headDim]
				scores := make([]float32, t+1)
				for j := 0; j <= t; j++ {
					kj := qkv[j][embd+h*headDim : embd+(h+1)*headDim]
					scores[j] = tensor.Dot(qh, kj) * scale
				}
				tensor.Softmax(scores)
				if opts.CaptureAttentions {
					copy(layerAttn[h][t][:t+1], scores)
				}
				out := attnOut[h*headDim : (h+1)*headDim]
				for d := 0; d < headDim; d++ {
					var sum float32
					for j := 0; j <= t; j++ {
						sum += scores[j] * qkv[j][2*embd+h*headDim+d]
					}
					out[d] = sum
				}
			}
			tensor.MatVec(proj, layer.AttnProj, attnOut)
			tensor.Add(proj, layer.AttnProjBias)
			tensor.Add(x[t], proj)
		}
		if opts.CaptureAttentions {
			res.Attentions = append(res.Attentions, layerAttn)
		}

		// MLP block: pre-norm, gelu MLP, residual.
		ffnDim := layer.MLPUp.R
		up := make([]float32, ffnDim)
		down := make([]float32, embd)
		for t := 0; t < seqLen; t++ {
			tensor.LayerNorm(normed[t], x[t], layer.LN2Weight, layer.LN2Bias, eps)
			tensor.MatVec(up, layer.MLPUp, normed[t])
			tensor.Add(up, layer.MLPUpBias)
			for i := range up {
				up[i] = tensor.Gelu(up[i])
			}
			tensor.MatVec(down, layer.MLPDown, up)
			tensor.Add(down, layer.MLPDownBias)
			tensor.Add(x[t], down)
		}

		if opts.CaptureHiddenStates && li < len(m.Layers)-1 {
			res.HiddenStates = append(res.HiddenStates, copyStates(x))
		}
	}

	// The last captured entry is the final block's output after ln_f, as
	// the reference checkpoints report it.
	if opts.CaptureHiddenStates {
		last := make([][]float32, seqLen)
		for t := range last {
			last[t] = make([]float32, embd)
			tensor.LayerNorm(last[t], x[t], m.LNFinalWeight, m.LNFinalBias, eps)
		}
		res.HiddenStates = append(res.HiddenStates, last)
	}

	// Final norm and tied LM head.
	start := 0
	if opts.LastLogitsOnly {
		start = seqLen - 1
	}
	res.Logits = make([][]float32, seqLen)
	final := make([]float32, embd)
	for t := start; t < seqLen; t++ {
		tensor.LayerNorm(final, x[t], m.LNFinalWeight, m.LNFinalBias, eps)
		logits := make([]float32, m.Config.VocabSize)
		tensor.MatVec(logits, m.TokenEmb, final)
		res.Logits[t] = logits
	}

	return res, nil
}

// Generate greedily extends ids until maxLength total tokens or eos. The
// returned slice includes the prompt tokens, matching the generate
// convention of the reference implementation.
func (m *Model) Generate(ctx context.Context, ids []int, maxLength int) ([]int, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}
	if maxLength > m.Config.NPositions {
		maxLength = m.Config.NPositions
	}

	toks := append([]int(nil), ids...)
	for len(toks) < maxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := m.Forward(toks, ForwardOptions{LastLogitsOnly: true})
		if err != nil {
			return nil, err
		}
		next := tensor.Argmax(res.Logits[len(toks)-1])
		if next < 0 {
			return nil, fmt.Errorf("no logits produced")
		}
		toks = append(toks, next)
		if m.EOSTokenID >= 0 && next == m.EOSTokenID {
			break
		}
	}
	return toks, nil
}

func copyStates(x [][]float32) [][]float32 {
	out := make([][]float32, len(x))
	for t := range x {
		out[t] = append([]float32(nil), x[t]...)
	}
	return out
}
