package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/router"
)

func testGateway(t *testing.T, proxyURL string) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Port:                   0,
		ProxyURL:               proxyURL,
		ProxyModel:             "llama3:8b",
		FastRouterPriority:     []string{"echo", "command", "quick"},
		SemanticRouterPriority: nil,
		Routers: map[string]*config.RouterConfig{
			"echo":    {Enabled: true},
			"command": {Enabled: true, Options: config.RouterOptions{Prefix: "run:"}},
			"quick": {Enabled: true, Options: config.RouterOptions{
				Patterns: []config.PatternResponse{
					{Pattern: `^(hi|hello|hey)\b`, Response: "Hello!"},
				},
			}},
		},
	}

	g, err := New(cfg, Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, payload
}

func TestChatCompletions_LocalBuffered(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, body := postChat(t, srv, `{"model":"x","messages":[{"role":"user","content":"hello there"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, strings.HasPrefix(gjson.GetBytes(body, "id").String(), "chatcmpl-"))
	assert.Equal(t, "chat.completion", gjson.GetBytes(body, "object").String())
	assert.Equal(t, "clawlayer", gjson.GetBytes(body, "model").String())
	assert.Equal(t, "Hello!", gjson.GetBytes(body, "choices.0.message.content").String())
	assert.Equal(t, "stop", gjson.GetBytes(body, "choices.0.finish_reason").String())
	assert.Greater(t, gjson.GetBytes(body, "usage.total_tokens").Int(), int64(0))
}

func TestChatCompletions_LocalStreaming(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.Len(t, frames, 4)

	role := strings.TrimPrefix(frames[0], "data: ")
	assert.Equal(t, "assistant", gjson.Get(role, "choices.0.delta.role").String())
	assert.Equal(t, "chat.completion.chunk", gjson.Get(role, "object").String())

	content := strings.TrimPrefix(frames[1], "data: ")
	assert.Equal(t, "Hello!", gjson.Get(content, "choices.0.delta.content").String())

	finish := strings.TrimPrefix(frames[2], "data: ")
	assert.Equal(t, "stop", gjson.Get(finish, "choices.0.finish_reason").String())

	assert.Equal(t, "data: [DONE]", frames[3])
}

func TestChatCompletions_CommandToolCall(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":"run: pwd"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "tool_calls", gjson.GetBytes(body, "choices.0.finish_reason").String())
	tc := gjson.GetBytes(body, "choices.0.message.tool_calls.0")
	assert.Equal(t, "exec", tc.Get("function.name").String())
	assert.Equal(t, "pwd", gjson.Get(tc.Get("function.arguments").String(), "command").String())
}

func TestChatCompletions_EchoToolResult(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, body := postChat(t, srv, `{"messages":[
		{"role":"user","content":"run: ls"},
		{"role":"assistant","tool_calls":[{"id":"call_123","type":"function","function":{"name":"exec","arguments":"{\"command\":\"ls\"}"}}]},
		{"role":"tool","tool_call_id":"call_123","content":"total 0"}
	]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "total 0", gjson.GetBytes(body, "choices.0.message.content").String())
}

func TestChatCompletions_ProxyFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "llama3:8b", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "explain DNS", gjson.GetBytes(body, "messages.0.content").String())
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"DNS is..."}}]}`)
	}))
	defer upstream.Close()

	srv := testGateway(t, upstream.URL)
	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":"explain DNS"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DNS is...", gjson.GetBytes(body, "choices.0.message.content").String())

	// The upstream answer shows up in the request log.
	logResp, err := http.Get(srv.URL + "/api/logs")
	require.NoError(t, err)
	logs, _ := io.ReadAll(logResp.Body)
	_ = logResp.Body.Close()
	assert.True(t, gjson.GetBytes(logs, "logs.0.proxied").Bool())
	assert.Equal(t, "DNS is...", gjson.GetBytes(logs, "logs.0.response").String())
}

func TestChatCompletions_ProxyConnectionError(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":"explain DNS"}]}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "connection_error", gjson.GetBytes(body, "error.kind").String())
	assert.Equal(t, "llama3:8b", gjson.GetBytes(body, "error.details.model").String())
}

func TestChatCompletions_ProxyHTTPErrorStatusRelayed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	srv := testGateway(t, upstream.URL)
	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":"explain DNS"}]}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "http_error", gjson.GetBytes(body, "error.kind").String())
	assert.Equal(t, int64(503), gjson.GetBytes(body, "error.details.status_code").Int())
}

func TestChatCompletions_BadRequests(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, _ := postChat(t, srv, `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postChat(t, srv, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postChat(t, srv, `{"messages":[{"role":"user"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatCompletions_StructuredContentParts(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":[
		{"type":"text","text":"hello"},
		{"type":"text","text":"friend"}
	]}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello!", gjson.GetBytes(body, "choices.0.message.content").String())
}

func TestModelsEndpoint(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"models":["clawlayer"]}`, string(body))
}

func TestStatsAndLogsEndpoints(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	postChat(t, srv, `{"messages":[{"role":"user","content":"hello"}]}`)
	postChat(t, srv, `{"messages":[{"role":"user","content":"run: date"}]}`)

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	stats, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), gjson.GetBytes(stats, "requests.total").Int())
	assert.Equal(t, int64(2), gjson.GetBytes(stats, "requests.local").Int())
	assert.Equal(t, int64(1), gjson.GetBytes(stats, "router_hits.quick").Int())
	assert.Equal(t, int64(1), gjson.GetBytes(stats, "router_hits.linux_command").Int())

	resp, err = http.Get(srv.URL + "/api/logs?limit=1")
	require.NoError(t, err)
	logs, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, int64(1), gjson.GetBytes(logs, "count").Int())
	assert.Equal(t, "linux_command", gjson.GetBytes(logs, "logs.0.router").String())
}

func TestRoutersEndpoint(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, err := http.Get(srv.URL + "/api/routers")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, "echo", gjson.GetBytes(body, "routers.0.name").String())
	assert.Equal(t, "command", gjson.GetBytes(body, "routers.1.name").String())
	assert.Equal(t, "quick", gjson.GetBytes(body, "routers.2.name").String())
}

func TestTestEndpoint(t *testing.T) {
	srv := testGateway(t, "http://localhost:1")

	resp, err := http.Post(srv.URL+"/api/test", "application/json",
		strings.NewReader(`{"message":"run: whoami"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "linux_command", gjson.GetBytes(body, "router").String())
	assert.False(t, gjson.GetBytes(body, "should_proxy").Bool())

	// Dry runs must not count as traffic.
	statsResp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	stats, _ := io.ReadAll(statsResp.Body)
	_ = statsResp.Body.Close()
	assert.Equal(t, int64(0), gjson.GetBytes(stats, "requests.total").Int())
}

type stubMatcher struct {
	route string
	score float64
}

func (m *stubMatcher) Match(context.Context, string) (string, float64, error) {
	return m.route, m.score, nil
}

func TestConfigReload_RebuildsEmbeddingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clawlayer.yaml")
	yamlBody := `proxy_url: http://localhost:1
proxy_model: llama3:8b
fast_router_priority: [echo, command]
semantic_router_priority: [greeting]
routers:
  greeting:
    enabled: true
    options:
      utterances: ["good morning"]
      cascade_stages:
        - type: embedding
          threshold: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	rebuilt := 0
	deps := &router.Deps{
		NewEmbedding: func(*config.Config) router.EmbeddingMatcher {
			rebuilt++
			return &stubMatcher{route: "greeting", score: 0.95}
		},
	}
	g, err := New(cfg, Options{ConfigPath: path, Deps: deps})
	require.NoError(t, err)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	// No embedding index at startup, so greetings fall through to the
	// dead proxy.
	resp, _ := postChat(t, srv, `{"messages":[{"role":"user","content":"good morning"}]}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	reloadResp, err := http.Post(srv.URL+"/api/config/reload", "application/json", nil)
	require.NoError(t, err)
	_ = reloadResp.Body.Close()
	require.Equal(t, http.StatusOK, reloadResp.StatusCode)
	assert.Equal(t, 1, rebuilt)

	resp, body := postChat(t, srv, `{"messages":[{"role":"user","content":"good morning"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hi (quick response)", gjson.GetBytes(body, "choices.0.message.content").String())
}

func TestParseRequest_RoutingContext(t *testing.T) {
	req, err := parseRequest([]byte(`{"messages":[
		{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"exec","arguments":"{}"}}]},
		{"role":"tool","tool_call_id":"call_1","content":"out"}
	],"stream":true}`))
	require.NoError(t, err)

	assert.Equal(t, "tool", req.Routing.Role)
	assert.Equal(t, "call_1", req.Routing.ToolCallID)
	assert.True(t, req.Routing.Stream)
	assert.Equal(t, "out", req.LastMessage)
	require.Len(t, req.Routing.Messages, 2)
	assert.Equal(t, "exec", req.Routing.Messages[0].ToolCalls[0].Function.Name)
}
