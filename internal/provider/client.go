// Package provider implements clients for the configured embedding and
// text-generation backends.
//
// FILES:
//   - client.go:    chat-completions client used for LLM verification
//   - embedding.go: embeddings client (Ollama native and OpenAI-style APIs)
//   - index.go:     similarity index over route utterances
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/utils"
)

// ChatClient talks to a chat-completions-compatible endpoint.
type ChatClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// ChatExchange captures one round trip for diagnostic traces.
type ChatExchange struct {
	Request  string // exact outbound JSON payload
	Response string // raw inbound body, when one was received
	Content  string // choices[0].message.content on success
}

// ClientOption configures a client.
type ClientOption func(*http.Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *http.Client) {
		c.Timeout = timeout
	}
}

// NewChatClient builds a chat client for the provider's text endpoint.
// Both Ollama and OpenAI-style providers expose /v1/chat/completions.
func NewChatClient(p *config.Provider, model string, opts ...ClientOption) *ChatClient {
	c := &ChatClient{
		endpoint: chatEndpoint(p.URL),
		model:    model,
		apiKey:   p.APIKey,
		httpClient: &http.Client{
			Timeout: config.DefaultClassifyTimeout,
		},
	}
	for _, opt := range opts {
		opt(c.httpClient)
	}
	if c.apiKey != "" {
		log.Debug().Str("endpoint", c.endpoint).Str("key", utils.MaskKey(c.apiKey)).
			Msg("chat client authenticated")
	}
	return c
}

// Endpoint returns the resolved chat-completions URL.
func (c *ChatClient) Endpoint() string { return c.endpoint }

// Model returns the configured model identifier.
func (c *ChatClient) Model() string { return c.model }

// Complete sends a single-turn prompt and returns the assistant content.
// The returned exchange is populated as far as the round trip got, so
// callers can record it even when err is non-nil.
func (c *ChatClient) Complete(ctx context.Context, prompt string, temperature float64) (*ChatExchange, error) {
	payload, err := utils.MarshalNoEscape(map[string]any{
		"model":       c.model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": temperature,
	})
	if err != nil {
		return &ChatExchange{}, fmt.Errorf("encode request: %w", err)
	}
	ex := &ChatExchange{Request: string(payload)}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return ex, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ex, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ex, fmt.Errorf("read response: %w", err)
	}
	ex.Response = string(body)

	if resp.StatusCode != http.StatusOK {
		return ex, fmt.Errorf("HTTP %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}

	ex.Content = gjson.GetBytes(body, "choices.0.message.content").String()
	return ex, nil
}

func chatEndpoint(baseURL string) string {
	if looksLikeChatEndpoint(baseURL) {
		return baseURL
	}
	return trimSlash(baseURL) + "/v1/chat/completions"
}

// looksLikeChatEndpoint reports whether the URL already names the
// chat-completions path, so configs may give either form.
func looksLikeChatEndpoint(url string) bool {
	return len(url) > len("/chat/completions") &&
		url[len(url)-len("/chat/completions"):] == "/chat/completions"
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
