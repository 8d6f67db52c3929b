// Package proxy forwards unrouted requests to the downstream LLM and relays
// its response, streaming or buffered.
//
// DESIGN: Forwarding failures are data, not control flow. Forward always
// returns an Outcome; upstream HTTP errors and connection errors become
// typed Error values the caller renders to the client, so a dead backend
// degrades to an error payload instead of a dropped connection.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/openclaw/clawlayer/internal/config"
)

// ErrorKind classifies a forwarding failure.
type ErrorKind string

const (
	// ErrHTTP means the upstream answered with a non-200 status.
	ErrHTTP ErrorKind = "http_error"
	// ErrConnection means the upstream could not be reached at all.
	ErrConnection ErrorKind = "connection_error"
)

// ErrorDetails carries the structured context of a forwarding failure.
type ErrorDetails struct {
	URL        string `json:"url"`
	Model      string `json:"model"`
	StatusCode int    `json:"status_code,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
}

// Error is a forwarding failure as a value.
type Error struct {
	Kind    ErrorKind    `json:"kind"`
	Message string       `json:"message"`
	Details ErrorDetails `json:"details"`
}

// Outcome is the result of one Forward call. Exactly one result field is
// set: Response for a buffered success, Stream for a streaming success, Err
// for any failure. On success Request holds the exact payload sent upstream,
// model override and delivery mode included, so the exchange can be logged
// or inspected later.
type Outcome struct {
	Request  []byte
	Response []byte
	Stream   *Stream
	Err      *Error
}

// Proxy forwards chat-completion requests to one downstream endpoint with a
// fixed model override.
type Proxy struct {
	endpoint string
	model    string
	client   *http.Client
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

// WithTimeout sets the overall forward timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.client.Timeout = d }
}

// New builds a proxy for the given base URL and model. The URL may be a
// bare host or a full chat-completions endpoint.
func New(url, model string, opts ...Option) *Proxy {
	p := &Proxy{
		endpoint: resolveEndpoint(url),
		model:    model,
		client:   &http.Client{Timeout: config.DefaultProxyTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Endpoint returns the resolved upstream URL.
func (p *Proxy) Endpoint() string { return p.endpoint }

// Model returns the model the proxy injects into forwarded requests.
func (p *Proxy) Model() string { return p.model }

// Forward sends the conversation to the upstream with the proxy's model and
// the requested delivery mode. messages must be a JSON array of message
// objects exactly as received from the client.
func (p *Proxy) Forward(ctx context.Context, messages json.RawMessage, stream bool) *Outcome {
	body, err := p.buildPayload(messages, stream)
	if err != nil {
		return &Outcome{Err: p.connectionError(fmt.Errorf("encode payload: %w", err))}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return &Outcome{Err: p.connectionError(err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", p.endpoint).Msg("proxy: upstream unreachable")
		return &Outcome{Err: p.connectionError(err)}
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		log.Warn().Int("status", resp.StatusCode).Str("url", p.endpoint).
			Str("body", strings.TrimSpace(string(snippet))).Msg("proxy: upstream error status")
		return &Outcome{Err: &Error{
			Kind:    ErrHTTP,
			Message: fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode),
			Details: ErrorDetails{URL: p.endpoint, Model: p.model, StatusCode: resp.StatusCode},
		}}
	}

	if stream {
		log.Debug().Dur("latency", time.Since(start)).Msg("proxy: streaming upstream response")
		return &Outcome{Request: body, Stream: newStream(resp.Body)}
	}

	payload, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return &Outcome{Err: p.connectionError(err)}
	}
	log.Debug().Dur("latency", time.Since(start)).Int("bytes", len(payload)).
		Msg("proxy: buffered upstream response")
	return &Outcome{Request: body, Response: payload}
}

// buildPayload assembles the upstream request body, overriding the model
// and delivery mode while passing the messages through untouched.
func (p *Proxy) buildPayload(messages json.RawMessage, stream bool) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "model", p.model)
	if err != nil {
		return nil, err
	}
	body, err = sjson.SetRawBytes(body, "messages", messages)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "stream", stream)
}

func (p *Proxy) connectionError(err error) *Error {
	return &Error{
		Kind:    ErrConnection,
		Message: err.Error(),
		Details: ErrorDetails{URL: p.endpoint, Model: p.model, ErrorType: fmt.Sprintf("%T", err)},
	}
}

// resolveEndpoint accepts either a full chat-completions URL or a bare base
// URL and returns the full endpoint.
func resolveEndpoint(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if strings.HasSuffix(trimmed, "/chat/completions") {
		return trimmed
	}
	return trimmed + "/v1/chat/completions"
}
