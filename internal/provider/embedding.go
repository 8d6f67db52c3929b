package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/utils"
)

// EmbedClient computes embeddings through a configured provider.
// Ollama exposes /api/embeddings ({model, prompt}); OpenAI-style providers
// expose /v1/embeddings ({model, input}).
type EmbedClient struct {
	baseURL    string
	model      string
	apiKey     string
	kind       string
	httpClient *http.Client
}

// NewEmbedClient builds an embeddings client for the provider's embed model.
func NewEmbedClient(p *config.Provider, model string, opts ...ClientOption) *EmbedClient {
	c := &EmbedClient{
		baseURL: trimSlash(p.URL),
		model:   model,
		apiKey:  p.APIKey,
		kind:    p.Type,
		httpClient: &http.Client{
			Timeout: config.DefaultClassifyTimeout,
		},
	}
	for _, opt := range opts {
		opt(c.httpClient)
	}
	return c
}

// Embed returns the embedding vector for text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var endpoint string
	var request map[string]any
	var vectorPath string

	switch c.kind {
	case config.ProviderOpenAI:
		endpoint = c.baseURL + "/v1/embeddings"
		request = map[string]any{"model": c.model, "input": text}
		vectorPath = "data.0.embedding"
	default:
		endpoint = c.baseURL + "/api/embeddings"
		request = map[string]any{"model": c.model, "prompt": text}
		vectorPath = "embedding"
	}

	payload, err := utils.MarshalNoEscape(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}

	raw := gjson.GetBytes(body, vectorPath)
	if !raw.Exists() {
		return nil, fmt.Errorf("no embedding in response")
	}
	values := raw.Array()
	vec := make([]float64, len(values))
	for i, v := range values {
		vec[i] = v.Float()
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding vector")
	}
	return vec, nil
}
