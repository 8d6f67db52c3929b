// Local response rendering - OpenAI chat-completion shapes for canned
// router results, buffered and streaming.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"

	"github.com/openclaw/clawlayer/internal/router"
	"github.com/openclaw/clawlayer/internal/utils"
)

// localModelName is the model reported for locally served completions.
const localModelName = "clawlayer"

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type completionMessage struct {
	Role      string            `json:"role"`
	Content   *string           `json:"content"`
	ToolCalls []router.ToolCall `json:"tool_calls,omitempty"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

func finishReason(result *router.RouteResult) string {
	if len(result.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// respondLocal renders a router result to the client in the requested
// delivery mode. Returns the estimated completion token count.
func (g *Gateway) respondLocal(w http.ResponseWriter, req *ParsedRequest, result *router.RouteResult) int {
	served := g.tokens.Count(result.Content)
	if req.Routing.Stream {
		g.streamLocal(w, result)
		return served
	}

	now := time.Now()
	content := result.Content
	msg := completionMessage{Role: "assistant", ToolCalls: result.ToolCalls}
	if len(result.ToolCalls) == 0 {
		msg.Content = &content
	}

	writeJSON(w, http.StatusOK, completion{
		ID:      fmt.Sprintf("chatcmpl-%d", now.Unix()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   localModelName,
		Choices: []completionChoice{{Message: msg, FinishReason: finishReason(result)}},
		Usage: completionUsage{
			PromptTokens:     g.tokens.Count(req.LastMessage),
			CompletionTokens: served,
			TotalTokens:      g.tokens.Count(req.LastMessage) + served,
		},
	})
	return served
}

type chunkChoice struct {
	Index        int            `json:"index"`
	Delta        map[string]any `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

// streamLocal emits the canned result as the standard SSE chunk sequence:
// role, payload, finish, [DONE].
func (g *Gateway) streamLocal(w http.ResponseWriter, result *router.RouteResult) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	now := time.Now()
	id := fmt.Sprintf("chatcmpl-%d", now.Unix())

	emit := func(delta map[string]any, finish *string) {
		frame, err := utils.MarshalNoEscape(chunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: now.Unix(),
			Model:   localModelName,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		})
		if err != nil {
			log.Warn().Err(err).Msg("encode stream chunk failed")
			return
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", frame)
		if flusher != nil {
			flusher.Flush()
		}
	}

	emit(map[string]any{"role": "assistant"}, nil)

	if len(result.ToolCalls) > 0 {
		emit(map[string]any{"tool_calls": indexedToolCalls(result.ToolCalls)}, nil)
	} else {
		emit(map[string]any{"content": result.Content}, nil)
	}

	reason := finishReason(result)
	emit(map[string]any{}, &reason)

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// indexedToolCalls adds the streaming "index" field each delta tool call
// requires, without teaching the router types about wire concerns.
func indexedToolCalls(calls []router.ToolCall) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(calls))
	for i, call := range calls {
		encoded, err := utils.MarshalNoEscape(call)
		if err != nil {
			log.Warn().Err(err).Msg("encode tool call failed")
			continue
		}
		withIndex, err := sjson.SetBytes(encoded, "index", i)
		if err != nil {
			withIndex = encoded
		}
		out = append(out, json.RawMessage(withIndex))
	}
	return out
}
