package inference

import "context"

// ForwardOutput carries the activations captured during a single forward
// pass over a prompt. Both fields keep the batch axis, which is always of
// length 1 in this engine.
type ForwardOutput struct {
	// Attentions is indexed [layer][batch][head][query][key].
	Attentions [][][][][]float32
	// HiddenStates is indexed [layer][batch][position][dim] and includes
	// the embedding output as its first entry.
	HiddenStates [][][][]float32
}

// GenerateOptions controls the generation loop.
type GenerateOptions struct {
	// MaxLength bounds the total sequence length, prompt included.
	MaxLength int
}

// Engine is a loaded model plus its tokenizer, ready to serve requests.
type Engine interface {
	Tokenize(text string) ([]int, error)
	Forward(ids []int) (*ForwardOutput, error)
	Generate(ctx context.Context, ids []int, opts GenerateOptions) ([]int, error)
	Decode(ids []int, skipSpecial bool) (string, error)
	PadTokenID() int
	EOSTokenID() int
	Close() error
}
