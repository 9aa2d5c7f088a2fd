package inference

import (
	"context"
	"fmt"

	"github.com/attnlens/attnlens/internal/model"
	"github.com/attnlens/attnlens/internal/tokenizer"
)

type coreModel interface {
	Forward(ids []int, opts model.ForwardOptions) (*model.ForwardResult, error)
	Generate(ctx context.Context, ids []int, maxLength int) ([]int, error)
}

type EngineImpl struct {
	model      coreModel
	tokenizer  tokenizer.Tokenizer
	padTokenID int
	eosTokenID int
	closeFn    func() error
}

func (e *EngineImpl) Tokenize(text string) ([]int, error) {
	ids, err := safeEncode(e.tokenizer, text)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("prompt produced no tokens")
	}
	return ids, nil
}

// Forward runs a full-sequence pass capturing attentions and hidden states,
// then restores the batch axis the model layer strips internally.
func (e *EngineImpl) Forward(ids []int) (*ForwardOutput, error) {
	res, err := safeForward(e.model, ids, model.ForwardOptions{
		CaptureAttentions:   true,
		CaptureHiddenStates: true,
	})
	if err != nil {
		return nil, err
	}

	out := &ForwardOutput{
		Attentions:   make([][][][][]float32, len(res.Attentions)),
		HiddenStates: make([][][][]float32, len(res.HiddenStates)),
	}
	for l, layer := range res.Attentions {
		out.Attentions[l] = [][][][]float32{layer}
	}
	for l, layer := range res.HiddenStates {
		out.HiddenStates[l] = [][][]float32{layer}
	}
	return out, nil
}

func (e *EngineImpl) Generate(ctx context.Context, ids []int, opts GenerateOptions) ([]int, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return safeGenerate(ctx, e.model, ids, opts.MaxLength)
}

func (e *EngineImpl) Decode(ids []int, skipSpecial bool) (string, error) {
	if skipSpecial {
		return safeDecode(func() (string, error) { return e.tokenizer.DecodeSkipSpecial(ids) })
	}
	return safeDecode(func() (string, error) { return e.tokenizer.Decode(ids) })
}

func (e *EngineImpl) PadTokenID() int { return e.padTokenID }

func (e *EngineImpl) EOSTokenID() int { return e.eosTokenID }

func (e *EngineImpl) Close() error {
	if e == nil || e.closeFn == nil {
		return nil
	}
	return e.closeFn()
}

// Tokenizers and model code index heavily into checkpoint-derived tables;
// a malformed checkpoint surfaces as a panic, which callers must see as a
// plain error.

func safeEncode(tok tokenizer.Tokenizer, text string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tokenizer encode panic: %v", rec)
		}
	}()
	return tok.Encode(text)
}

func safeDecode(fn func() (string, error)) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tokenizer decode panic: %v", rec)
		}
	}()
	return fn()
}

func safeForward(m coreModel, ids []int, opts model.ForwardOptions) (res *model.ForwardResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("model forward panic: %v", rec)
		}
	}()
	return m.Forward(ids, opts)
}

func safeGenerate(ctx context.Context, m coreModel, ids []int, maxLength int) (toks []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("model generate panic: %v", rec)
		}
	}()
	return m.Generate(ctx, ids, maxLength)
}
