// Package memory – embeddings.go implements embedding generation for the
// semantic memory. The default provider runs a local ONNX sentence-embedding
// model (all-MiniLM-L6-v2, 384 dimensions); an OpenAI-compatible remote
// provider and a zero-cost null fallback are also available.
// All providers return unit-normalized vectors.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/viterin/vek/vek32"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Embed generates embeddings for a batch of texts.
	// Returns one unit-normalized float32 vector per input text.
	// Empty or whitespace-only inputs yield empty vectors without
	// invoking the model.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of the output vectors.
	Dimensions() int

	// Name returns the provider name.
	Name() string

	// Model returns the model name.
	Model() string
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is the embedding provider ("local", "openai", "none").
	Provider string `yaml:"provider"`

	// Model is the embedding model name. For the local provider this is a
	// HuggingFace repo (default "sentence-transformers/all-MiniLM-L6-v2").
	Model string `yaml:"model"`

	// Dimensions is the output vector dimensionality.
	Dimensions int `yaml:"dimensions"`

	// APIKey is the API key for remote providers. If empty, falls back to
	// provider-specific env vars.
	APIKey string `yaml:"api_key"`

	// BaseURL is the API base URL for remote providers.
	BaseURL string `yaml:"base_url"`

	// CacheDir is where the local provider stores downloaded models.
	CacheDir string `yaml:"cache_dir"`

	// OrtLibraryPath optionally points at the onnxruntime shared library.
	OrtLibraryPath string `yaml:"ort_library_path"`
}

// DefaultEmbeddingConfig returns sensible defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "local",
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
	}
}

// NewEmbeddingProvider creates an embedding provider from config.
func NewEmbeddingProvider(cfg EmbeddingConfig) EmbeddingProvider {
	switch strings.ToLower(cfg.Provider) {
	case "local", "":
		return NewLocalEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return &NullEmbedder{}
	}
}

// normalizeInPlace scales v to unit L2 norm. Zero vectors are left unchanged.
func normalizeInPlace(v []float32) {
	if len(v) == 0 {
		return
	}
	norm := math.Sqrt(float64(vek32.Dot(v, v)))
	if norm == 0 {
		return
	}
	vek32.MulNumber_Inplace(v, float32(1/norm))
}

// ---------- Local ONNX Embedding Provider ----------

// LocalEmbedder runs a sentence-embedding model in-process via ONNX Runtime.
// The model is downloaded on first use and loaded exactly once per process;
// the loaded pipeline is shared read-only by all tenants and turns.
type LocalEmbedder struct {
	model          string
	dimensions     int
	cacheDir       string
	ortLibraryPath string

	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	loadErr  error
	loaded   bool
}

// NewLocalEmbedder creates a local embedding provider. The model is not
// loaded until the first Embed call.
func NewLocalEmbedder(cfg EmbeddingConfig) *LocalEmbedder {
	model := cfg.Model
	if model == "" {
		model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 384
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cacheDir = filepath.Join(home, ".bia", "models")
		} else {
			cacheDir = "./data/models"
		}
	}
	return &LocalEmbedder{
		model:          model,
		dimensions:     dims,
		cacheDir:       cacheDir,
		ortLibraryPath: cfg.OrtLibraryPath,
	}
}

// ensureLoaded downloads and loads the model exactly once. A failed load is
// cached and returned on every subsequent call rather than retried.
func (e *LocalEmbedder) ensureLoaded() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return e.loadErr
	}
	e.loaded = true

	if err := os.MkdirAll(e.cacheDir, 0o755); err != nil {
		e.loadErr = fmt.Errorf("create model cache dir: %w", err)
		return e.loadErr
	}

	modelPath := filepath.Join(e.cacheDir, filepath.Base(e.model))
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		downloaded, err := hugot.DownloadModel(e.model, e.cacheDir, hugot.NewDownloadOptions())
		if err != nil {
			e.loadErr = fmt.Errorf("download model %s: %w", e.model, err)
			return e.loadErr
		}
		modelPath = downloaded
	}

	sessionOpts := []options.WithOption{
		options.WithIntraOpNumThreads(runtime.NumCPU()),
	}
	if e.ortLibraryPath != "" {
		sessionOpts = append(sessionOpts, options.WithOnnxLibraryPath(e.ortLibraryPath))
	}

	session, err := hugot.NewORTSession(sessionOpts...)
	if err != nil {
		e.loadErr = fmt.Errorf("create ORT session: %w", err)
		return e.loadErr
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      filepath.Base(e.model),
	})
	if err != nil {
		session.Destroy()
		e.loadErr = fmt.Errorf("create embedding pipeline: %w", err)
		return e.loadErr
	}

	e.session = session
	e.pipeline = pipeline
	return nil
}

// Embed generates unit-normalized embeddings for a batch of texts.
// Blank inputs map to empty vectors and are never sent to the model.
func (e *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var nonBlank []string
	var indices []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = []float32{}
			continue
		}
		nonBlank = append(nonBlank, strings.TrimSpace(t))
		indices = append(indices, i)
	}
	if len(nonBlank) == 0 {
		return out, nil
	}

	if err := e.ensureLoaded(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.pipeline.RunPipeline(nonBlank)
	if err != nil {
		return nil, fmt.Errorf("embedding inference: %w", err)
	}
	if len(result.Embeddings) != len(nonBlank) {
		return nil, fmt.Errorf("embedding inference: got %d vectors for %d inputs",
			len(result.Embeddings), len(nonBlank))
	}

	for j, vec := range result.Embeddings {
		normalizeInPlace(vec)
		out[indices[j]] = vec
	}
	return out, nil
}

// Dimensions returns the output vector dimensionality.
func (e *LocalEmbedder) Dimensions() int { return e.dimensions }

// Name returns the provider name.
func (e *LocalEmbedder) Name() string { return "local" }

// Model returns the model name.
func (e *LocalEmbedder) Model() string { return e.model }

// Close releases the ONNX session.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.pipeline = nil
	return nil
}

// ---------- OpenAI-Compatible Embedding Provider ----------

// openaiEmbedResponse is the OpenAI-compatible embeddings API response.
type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIEmbedder generates embeddings using an OpenAI-compatible
// /embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	client     *http.Client
}

// NewOpenAIEmbedder creates an OpenAI embedding provider.
func NewOpenAIEmbedder(cfg EmbeddingConfig) *OpenAIEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "sentence-transformers/") {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &OpenAIEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: dims,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Embed generates embeddings for a batch of texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var nonBlank []string
	var indices []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = []float32{}
			continue
		}
		nonBlank = append(nonBlank, t)
		indices = append(indices, i)
	}
	if len(nonBlank) == 0 {
		return out, nil
	}

	body := map[string]any{
		"model": e.model,
		"input": nonBlank,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result openaiEmbedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("embed API error: %s", result.Error.Message)
	}

	for _, d := range result.Data {
		if d.Index < len(indices) {
			normalizeInPlace(d.Embedding)
			out[indices[d.Index]] = d.Embedding
		}
	}
	return out, nil
}

// Dimensions returns the output vector dimensionality.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Name returns the provider name.
func (e *OpenAIEmbedder) Name() string { return "openai" }

// Model returns the model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// ---------- Null Embedding Provider ----------

// NullEmbedder is a no-op provider that disables semantic search.
// Memory search degrades to keyword-only when it is configured.
type NullEmbedder struct{}

// Embed returns nil (no embeddings).
func (e *NullEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, nil
}

// Dimensions returns 0.
func (e *NullEmbedder) Dimensions() int { return 0 }

// Name returns "none".
func (e *NullEmbedder) Name() string { return "none" }

// Model returns "none".
func (e *NullEmbedder) Model() string { return "none" }
