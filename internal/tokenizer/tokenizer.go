package tokenizer

// Tokenizer is the text <-> token id boundary used by the inference engine.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	// DecodeSkipSpecial decodes ids, dropping special tokens such as
	// <|endoftext|> from the output text.
	DecodeSkipSpecial(ids []int) (string, error)
	EOSID() int
}
