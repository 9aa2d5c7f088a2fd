package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/attnlens/attnlens/internal/analyze"
)

type testService struct {
	result *analyze.Result
	err    error

	gotPrompt string
	gotModel  string
}

func (s *testService) Analyze(ctx context.Context, prompt, modelName string) (*analyze.Result, error) {
	s.gotPrompt = prompt
	s.gotModel = modelName
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testResult() *analyze.Result {
	return &analyze.Result{
		GeneratedText: "hello world",
		Attentions: [][][][]float32{
			{{{1, 0}, {0.5, 0.5}}},
		},
		HiddenStates: [][][]float32{
			{{0.1, 0.2}, {0.3, 0.4}},
		},
	}
}

func newTestEcho(service AnalyzeService) *echo.Echo {
	e := echo.New()
	NewServer(service, nil).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeBasic(t *testing.T) {
	t.Parallel()

	svc := &testService{result: testResult()}
	e := newTestEcho(svc)
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"prompt":"hi","model_name":"distilgpt2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.gotPrompt != "hi" || svc.gotModel != "distilgpt2" {
		t.Fatalf("service got (%q, %q)", svc.gotPrompt, svc.gotModel)
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.GeneratedText != "hello world" {
		t.Fatalf("generated_text = %q", resp.GeneratedText)
	}
	if len(resp.ProcessedAttentions) != 1 || len(resp.ProcessedAttentions[0]) != 1 {
		t.Fatal("processed_attentions shape wrong")
	}
	if len(resp.ProcessedHiddenStates) != 1 || len(resp.ProcessedHiddenStates[0]) != 2 {
		t.Fatal("processed_hidden_states shape wrong")
	}
	if resp.ModelUsedForTesting != nil {
		t.Fatalf("model_used_for_testing = %q, want null", *resp.ModelUsedForTesting)
	}

	// The key must be present with a JSON null, not omitted.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw["model_used_for_testing"]; !ok || string(v) != "null" {
		t.Fatalf("model_used_for_testing raw = %q, want null", v)
	}
}

func TestAnalyzeReportsSubstitutedModel(t *testing.T) {
	t.Parallel()

	used := "distilgpt2"
	res := testResult()
	res.ModelUsed = &used
	e := newTestEcho(&testService{result: res})

	rec := doJSON(t, e, http.MethodPost, "/api/analyze",
		`{"prompt":"hi","model_name":"meta-llama/Meta-Llama-3-8B-Instruct"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ModelUsedForTesting == nil || *resp.ModelUsedForTesting != "distilgpt2" {
		t.Fatal("model_used_for_testing missing after substitution")
	}
}

func TestAnalyzeMissingPrompt(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testService{result: testResult()})
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"model_name":"distilgpt2"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body.String())
	}

	var body struct {
		Detail []ValidationIssue `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Detail) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(body.Detail))
	}
	issue := body.Detail[0]
	if issue.Type != "missing" || issue.Msg != "Field required" {
		t.Fatalf("issue = %+v", issue)
	}
	if len(issue.Loc) != 2 || issue.Loc[0] != "body" || issue.Loc[1] != "prompt" {
		t.Fatalf("loc = %v", issue.Loc)
	}
}

func TestAnalyzeMissingModelName(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testService{result: testResult()})
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"prompt":"hi"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Detail []ValidationIssue `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Detail) != 1 || body.Detail[0].Loc[1] != "model_name" {
		t.Fatalf("detail = %+v", body.Detail)
	}
}

func TestAnalyzeMissingBothFields(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testService{result: testResult()})
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Detail []ValidationIssue `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Detail) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(body.Detail))
	}
	if body.Detail[0].Loc[1] != "prompt" || body.Detail[1].Loc[1] != "model_name" {
		t.Fatalf("locs = %v, %v", body.Detail[0].Loc, body.Detail[1].Loc)
	}
}

func TestAnalyzeEmptyPromptIsNotMissing(t *testing.T) {
	t.Parallel()

	svc := &testService{result: testResult()}
	e := newTestEcho(svc)
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"prompt":"","model_name":"distilgpt2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty prompt, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeMalformedJSON(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testService{result: testResult()})
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"prompt": `)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "json_invalid") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestAnalyzeLoadErrorDetail(t *testing.T) {
	t.Parallel()

	svc := &testService{err: &analyze.LoadError{Cause: errContext("weights corrupt")}}
	e := newTestEcho(svc)
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"prompt":"hi","model_name":"distilgpt2"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Detail != "Error loading model: weights corrupt" {
		t.Fatalf("detail = %q", body.Detail)
	}
}

func TestAnalyzeInferenceErrorDetail(t *testing.T) {
	t.Parallel()

	svc := &testService{err: &analyze.InferenceError{Cause: errContext("forward blew up")}}
	e := newTestEcho(svc)
	rec := doJSON(t, e, http.MethodPost, "/api/analyze", `{"prompt":"hi","model_name":"distilgpt2"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Detail != "Error during inference: forward blew up" {
		t.Fatalf("detail = %q", body.Detail)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testService{result: testResult()})
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testService{result: testResult()})
	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Fatal("expected prometheus exposition output")
	}
}

func TestResponseFromResultWireNames(t *testing.T) {
	t.Parallel()

	used := "distilgpt2"
	res := testResult()
	res.ModelUsed = &used

	body, err := json.Marshal(ResponseFromResult(res))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, key := range []string{
		`"generated_text":"hello world"`,
		`"processed_attentions":`,
		`"processed_hidden_states":`,
		`"model_used_for_testing":"distilgpt2"`,
	} {
		if !strings.Contains(string(body), key) {
			t.Fatalf("missing %s in %s", key, body)
		}
	}
}

type errContext string

func (e errContext) Error() string { return string(e) }
