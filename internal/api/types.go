package api

import "github.com/attnlens/attnlens/internal/analyze"

// AnalyzeRequest is the body of POST /api/analyze. Pointer fields distinguish
// an absent key from an empty value during validation.
type AnalyzeRequest struct {
	Prompt    *string `json:"prompt"`
	ModelName *string `json:"model_name"`
}

// AnalyzeResponse mirrors the shapes produced by the analysis pipeline:
// attentions indexed [layer][head][query][key], hidden states
// [layer][position][dim]. ModelUsedForTesting is null unless the requested
// model was substituted.
type AnalyzeResponse struct {
	GeneratedText         string          `json:"generated_text"`
	ProcessedAttentions   [][][][]float32 `json:"processed_attentions"`
	ProcessedHiddenStates [][][]float32   `json:"processed_hidden_states"`
	ModelUsedForTesting   *string         `json:"model_used_for_testing"`
}

// ResponseFromResult maps an analysis result onto the wire names. The CLI
// uses it too, so one-shot output matches the endpoint exactly.
func ResponseFromResult(res *analyze.Result) AnalyzeResponse {
	return AnalyzeResponse{
		GeneratedText:         res.GeneratedText,
		ProcessedAttentions:   res.Attentions,
		ProcessedHiddenStates: res.HiddenStates,
		ModelUsedForTesting:   res.ModelUsed,
	}
}

// ValidationIssue is one entry of a 422 response detail list.
type ValidationIssue struct {
	Type  string `json:"type"`
	Loc   []any  `json:"loc"`
	Msg   string `json:"msg"`
	Input any    `json:"input"`
}
