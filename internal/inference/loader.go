package inference

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/attnlens/attnlens/internal/hub"
	"github.com/attnlens/attnlens/internal/logger"
	"github.com/attnlens/attnlens/internal/model"
	"github.com/attnlens/attnlens/internal/tokenizer"
)

// Loader assembles an Engine from a hub model id: it ensures the checkpoint
// files are cached locally, then loads config, tokenizer and weights.
type Loader struct {
	Hub *hub.Client
	Log logger.Logger
}

func (l Loader) Load(ctx context.Context, modelID string) (Engine, error) {
	if l.Hub == nil {
		return nil, fmt.Errorf("hub client is required")
	}
	log := l.Log
	if log == nil {
		log = logger.Default()
	}

	dir, err := l.Hub.EnsureModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	cfg, err := model.LoadConfig(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.LoadGPT2Files(dir)
	if err != nil {
		return nil, err
	}

	m, err := model.LoadSafetensors(dir, cfg)
	if err != nil {
		return nil, err
	}

	eos := m.EOSTokenID
	if eos < 0 {
		eos = tok.EOSID()
		m.EOSTokenID = eos
	}
	pad := m.PadTokenID
	if pad < 0 {
		pad = eos
	}

	log.Info("model loaded",
		"model", modelID,
		"layers", cfg.NLayer,
		"heads", cfg.NHead,
		"embd", cfg.NEmbd,
		"vocab", tok.VocabSize(),
	)

	return &EngineImpl{
		model:      m,
		tokenizer:  tok,
		padTokenID: pad,
		eosTokenID: eos,
	}, nil
}
