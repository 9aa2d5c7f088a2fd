package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalyzeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attnlens_requests_total",
		Help: "Total analyze requests, partitioned by resolved model and outcome",
	}, []string{"model", "outcome"})

	ModelLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attnlens_model_load_seconds",
		Help:    "Time spent loading model artifacts into memory",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attnlens_inference_seconds",
		Help:    "Time spent in forward and generation passes per request",
		Buckets: prometheus.DefBuckets,
	})

	TokensGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attnlens_tokens_generated_total",
		Help: "Total tokens produced by the generation loop, prompts excluded",
	})

	PromptLengthHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attnlens_prompt_length_tokens",
		Help:    "Distribution of tokenized prompt lengths",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 40, 50},
	})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attnlens_errors_total",
		Help: "Total failed requests, partitioned by failure stage",
	}, []string{"type"})
)
