package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultEOSToken = "<|endoftext|>"

// LoadGPT2Files builds a tokenizer from a Hugging Face style artifact
// directory containing vocab.json and merges.txt, with an optional
// tokenizer_config.json naming the eos/unk tokens.
func LoadGPT2Files(dir string) (*GPT2Tokenizer, error) {
	vocabRaw, err := os.ReadFile(filepath.Join(dir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("load vocab.json: %w", err)
	}
	var vocab map[string]int
	if err := json.Unmarshal(vocabRaw, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocab.json: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab.json is empty")
	}

	maxID := -1
	for _, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("vocab.json: negative token id %d", id)
		}
		if id > maxID {
			maxID = id
		}
	}
	tokens := make([]string, maxID+1)
	for tok, id := range vocab {
		tokens[id] = tok
	}

	mergesRaw, err := os.ReadFile(filepath.Join(dir, "merges.txt"))
	if err != nil {
		return nil, fmt.Errorf("load merges.txt: %w", err)
	}
	merges := strings.Split(string(mergesRaw), "\n")

	eosToken := defaultEOSToken
	unkToken := ""
	if cfg, err := loadTokenizerConfig(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		if cfg.EOSToken != "" {
			eosToken = cfg.EOSToken
		}
		unkToken = cfg.UnkToken
	}

	eosID, ok := vocab[eosToken]
	if !ok {
		return nil, fmt.Errorf("eos token %q not in vocab", eosToken)
	}
	unkID := -1
	if unkToken != "" {
		if id, ok := vocab[unkToken]; ok {
			unkID = id
		}
	}

	return NewGPT2(tokens, merges, eosID, unkID)
}

type hfTokenizerConfig struct {
	EOSToken string
	UnkToken string
}

// loadTokenizerConfig reads tokenizer_config.json. The eos_token/unk_token
// fields may be plain strings or AddedToken objects with a "content" field.
func loadTokenizerConfig(path string) (hfTokenizerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return hfTokenizerConfig{}, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return hfTokenizerConfig{}, fmt.Errorf("parse tokenizer_config.json: %w", err)
	}
	return hfTokenizerConfig{
		EOSToken: tokenField(obj, "eos_token"),
		UnkToken: tokenField(obj, "unk_token"),
	}, nil
}

func tokenField(obj map[string]json.RawMessage, key string) string {
	msg, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return s
	}
	var added struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(msg, &added); err == nil {
		return added.Content
	}
	return ""
}
