// Package hub fetches model artifacts from a Hugging Face style model hub
// into a local cache directory. Files already present are not re-fetched;
// there are no retries, a failed download fails the whole resolution.
package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/attnlens/attnlens/internal/logger"
)

const defaultBaseURL = "https://huggingface.co"

// requiredFiles are the artifacts a GPT-2 family model needs to run.
var requiredFiles = []string{
	"config.json",
	"vocab.json",
	"merges.txt",
	"model.safetensors",
}

// optionalFiles improve fidelity but their absence is not an error.
var optionalFiles = []string{
	"tokenizer_config.json",
}

type Client struct {
	baseURL  string
	cacheDir string
	http     *http.Client
	log      logger.Logger
}

type Option func(*Client)

// WithBaseURL overrides the hub endpoint, primarily for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(cacheDir string, opts ...Option) *Client {
	c := &Client{
		baseURL:  defaultBaseURL,
		cacheDir: cacheDir,
		http:     &http.Client{Timeout: 10 * time.Minute},
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultCacheDir returns the per-user artifact cache location.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "attnlens")
	}
	return filepath.Join(dir, "attnlens")
}

// EnsureModel makes all artifacts for modelID available locally and returns
// the directory containing them.
func (c *Client) EnsureModel(ctx context.Context, modelID string) (string, error) {
	if err := validateModelID(modelID); err != nil {
		return "", err
	}

	dir := filepath.Join(c.cacheDir, "models--"+strings.ReplaceAll(modelID, "/", "--"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	for _, name := range requiredFiles {
		if err := c.ensureFile(ctx, modelID, dir, name); err != nil {
			return "", err
		}
	}
	for _, name := range optionalFiles {
		if err := c.ensureFile(ctx, modelID, dir, name); err != nil {
			c.log.Debug("optional artifact unavailable", "model", modelID, "file", name, "error", err)
		}
	}
	return dir, nil
}

func (c *Client) ensureFile(ctx context.Context, modelID, dir, name string) error {
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", c.baseURL, modelID, name)
	c.log.Info("downloading model artifact", "model", modelID, "file", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s returned status %d", name, modelID, resp.StatusCode)
	}

	// Download to a temp file in the same directory so a partial fetch
	// never appears as a cached artifact.
	tmp, err := os.CreateTemp(dir, name+".download-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func validateModelID(id string) error {
	if id == "" {
		return fmt.Errorf("model identifier is required")
	}
	if strings.Contains(id, "..") || strings.HasPrefix(id, "/") {
		return fmt.Errorf("invalid model identifier %q", id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '/':
		default:
			return fmt.Errorf("invalid model identifier %q", id)
		}
	}
	if strings.Count(id, "/") > 1 {
		return fmt.Errorf("invalid model identifier %q", id)
	}
	return nil
}
