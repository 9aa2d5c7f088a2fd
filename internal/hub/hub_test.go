package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func newHubServer(t *testing.T, missing map[string]bool, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		name := parts[len(parts)-1]
		if missing[name] {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("content of " + name))
	}))
}

func TestEnsureModelDownloadsAndCaches(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := newHubServer(t, nil, &hits)
	defer srv.Close()

	cache := t.TempDir()
	c := New(cache, WithBaseURL(srv.URL))

	dir, err := c.EnsureModel(context.Background(), "distilgpt2")
	if err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	for _, name := range requiredFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != "content of "+name {
			t.Fatalf("unexpected content for %s: %q", name, data)
		}
	}

	first := hits.Load()
	if first == 0 {
		t.Fatal("expected downloads on first resolution")
	}

	// Second resolution serves from cache without touching the hub.
	if _, err := c.EnsureModel(context.Background(), "distilgpt2"); err != nil {
		t.Fatalf("EnsureModel (cached): %v", err)
	}
	if hits.Load() != first {
		t.Fatalf("expected no further requests, got %d -> %d", first, hits.Load())
	}
}

func TestEnsureModelMissingRequiredFile(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := newHubServer(t, map[string]bool{"model.safetensors": true}, &hits)
	defer srv.Close()

	c := New(t.TempDir(), WithBaseURL(srv.URL))
	if _, err := c.EnsureModel(context.Background(), "distilgpt2"); err == nil {
		t.Fatal("expected error when a required artifact is missing")
	}
}

func TestEnsureModelMissingOptionalFileSucceeds(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := newHubServer(t, map[string]bool{"tokenizer_config.json": true}, &hits)
	defer srv.Close()

	c := New(t.TempDir(), WithBaseURL(srv.URL))
	dir, err := c.EnsureModel(context.Background(), "distilgpt2")
	if err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		t.Fatal("optional file should not exist")
	}
}

func TestEnsureModelNamespacedID(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := newHubServer(t, nil, &hits)
	defer srv.Close()

	c := New(t.TempDir(), WithBaseURL(srv.URL))
	dir, err := c.EnsureModel(context.Background(), "openai-community/gpt2")
	if err != nil {
		t.Fatalf("EnsureModel: %v", err)
	}
	if !strings.HasSuffix(dir, "models--openai-community--gpt2") {
		t.Fatalf("unexpected cache layout: %s", dir)
	}
}

func TestValidateModelID(t *testing.T) {
	t.Parallel()
	for _, id := range []string{"distilgpt2", "openai-community/gpt2", "org/model-v0.2_x"} {
		if err := validateModelID(id); err != nil {
			t.Fatalf("validateModelID(%q): %v", id, err)
		}
	}
	for _, id := range []string{"", "../etc/passwd", "/abs", "a/b/c", "bad name", "semi;colon"} {
		if err := validateModelID(id); err == nil {
			t.Fatalf("validateModelID(%q): expected error", id)
		}
	}
}
