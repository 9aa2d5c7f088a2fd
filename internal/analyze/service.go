package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/attnlens/attnlens/internal/inference"
	"github.com/attnlens/attnlens/internal/logger"
	"github.com/attnlens/attnlens/internal/metrics"
)

// maxGenerateLength bounds the total sequence length during generation,
// prompt tokens included.
const maxGenerateLength = 50

// EngineLoader turns a model identifier into a ready Engine. Each request
// loads its own engine and releases it afterwards; there is no cross-request
// model cache.
type EngineLoader interface {
	Load(ctx context.Context, modelID string) (inference.Engine, error)
}

// Result is the outcome of one analysis pass. Attentions and HiddenStates
// have the batch axis already stripped: Attentions is indexed
// [layer][head][query][key], HiddenStates [layer][position][dim].
type Result struct {
	GeneratedText string
	Attentions    [][][][]float32
	HiddenStates  [][][]float32
	// ModelUsed is non-nil only when the requested model was substituted;
	// it then names the model that actually ran.
	ModelUsed *string
}

type Service struct {
	loader   EngineLoader
	resolver *Resolver
}

func NewService(loader EngineLoader, resolver *Resolver) *Service {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Service{loader: loader, resolver: resolver}
}

// Analyze runs the full pipeline for one prompt: resolve the model, load it,
// tokenize, capture activations in a forward pass, generate a continuation,
// and decode it.
func (s *Service) Analyze(ctx context.Context, prompt, modelName string) (*Result, error) {
	resolved, substituted := s.resolver.Resolve(modelName)
	log := logger.FromContext(ctx).With("model", resolved)
	if substituted {
		log.Info("substituting requested model", "requested", modelName)
	}

	loadStart := time.Now()
	eng, err := s.loader.Load(ctx, resolved)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("load").Inc()
		metrics.AnalyzeRequestsTotal.WithLabelValues(resolved, "error").Inc()
		return nil, &LoadError{Cause: err}
	}
	defer func() { _ = eng.Close() }()
	metrics.ModelLoadDuration.Observe(time.Since(loadStart).Seconds())

	res, err := s.run(ctx, eng, prompt)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("inference").Inc()
		metrics.AnalyzeRequestsTotal.WithLabelValues(resolved, "error").Inc()
		return nil, &InferenceError{Cause: err}
	}

	if substituted {
		used := resolved
		res.ModelUsed = &used
	}
	metrics.AnalyzeRequestsTotal.WithLabelValues(resolved, "ok").Inc()
	log.Debug("analysis complete", "layers", len(res.Attentions), "generated_chars", len(res.GeneratedText))
	return res, nil
}

func (s *Service) run(ctx context.Context, eng inference.Engine, prompt string) (*Result, error) {
	start := time.Now()
	defer func() { metrics.InferenceDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := eng.Tokenize(prompt)
	if err != nil {
		return nil, err
	}
	metrics.PromptLengthHistogram.Observe(float64(len(ids)))

	fwd, err := eng.Forward(ids)
	if err != nil {
		return nil, err
	}
	attns, err := stripAttentionBatch(fwd.Attentions)
	if err != nil {
		return nil, err
	}
	hidden, err := stripHiddenBatch(fwd.HiddenStates)
	if err != nil {
		return nil, err
	}

	toks, err := eng.Generate(ctx, ids, inference.GenerateOptions{MaxLength: maxGenerateLength})
	if err != nil {
		return nil, err
	}
	metrics.TokensGeneratedTotal.Add(float64(len(toks) - len(ids)))

	text, err := eng.Decode(toks, true)
	if err != nil {
		return nil, err
	}

	return &Result{
		GeneratedText: text,
		Attentions:    attns,
		HiddenStates:  hidden,
	}, nil
}

// The engine always runs a single sequence, so every layer carries a batch
// axis of exactly one. Anything else indicates a shape bug upstream and must
// not be serialized.

func stripAttentionBatch(layers [][][][][]float32) ([][][][]float32, error) {
	out := make([][][][]float32, len(layers))
	for l, layer := range layers {
		if len(layer) != 1 {
			return nil, fmt.Errorf("attention layer %d: batch size %d, want 1", l, len(layer))
		}
		out[l] = layer[0]
	}
	return out, nil
}

func stripHiddenBatch(layers [][][][]float32) ([][][]float32, error) {
	out := make([][][]float32, len(layers))
	for l, layer := range layers {
		if len(layer) != 1 {
			return nil, fmt.Errorf("hidden state layer %d: batch size %d, want 1", l, len(layer))
		}
		out[l] = layer[0]
	}
	return out, nil
}
