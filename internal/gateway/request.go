// Request parsing - extracting the routable view of a chat request.
//
// DESIGN: The inbound body is treated as opaque JSON probed with gjson;
// only the routed fields are decoded, and the messages array is kept raw
// for byte-exact forwarding to the proxy.
package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openclaw/clawlayer/internal/router"
)

// ParsedRequest is the routable view of one chat-completions body.
type ParsedRequest struct {
	// Messages is the raw messages array, passed through to the proxy
	// untouched.
	Messages json.RawMessage

	// LastMessage is the extracted text of the final message.
	LastMessage string

	Routing router.RoutingContext
}

// parseRequest validates the body and extracts the routing view.
func parseRequest(body []byte) (*ParsedRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}

	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		return nil, fmt.Errorf("messages must be a non-empty array")
	}

	last := messages.Array()[len(messages.Array())-1]
	text, ok := messageText(last)
	if !ok {
		return nil, fmt.Errorf("last message has no content")
	}

	req := &ParsedRequest{
		Messages:    json.RawMessage(messages.Raw),
		LastMessage: text,
		Routing: router.RoutingContext{
			Role:       last.Get("role").String(),
			ToolCallID: last.Get("tool_call_id").String(),
			Stream:     gjson.GetBytes(body, "stream").Bool(),
		},
	}

	for _, m := range messages.Array() {
		msg := router.Message{
			Role:       m.Get("role").String(),
			ToolCallID: m.Get("tool_call_id").String(),
		}
		if content, ok := messageText(m); ok {
			msg.Content = content
		}
		for _, tc := range m.Get("tool_calls").Array() {
			msg.ToolCalls = append(msg.ToolCalls, router.ToolCall{
				ID:   tc.Get("id").String(),
				Type: tc.Get("type").String(),
				Function: router.ToolFunction{
					Name:      tc.Get("function.name").String(),
					Arguments: tc.Get("function.arguments").String(),
				},
			})
		}
		req.Routing.Messages = append(req.Routing.Messages, msg)
	}

	return req, nil
}

// messageText extracts the text of one message. Content is either a plain
// string or an array of typed parts whose text fields are concatenated.
func messageText(msg gjson.Result) (string, bool) {
	content := msg.Get("content")
	if !content.Exists() || content.Type == gjson.Null {
		return "", false
	}
	if content.Type == gjson.String {
		return content.String(), true
	}
	if content.IsArray() {
		var parts []string
		for _, part := range content.Array() {
			if text := part.Get("text"); text.Exists() {
				parts = append(parts, text.String())
			}
		}
		return strings.Join(parts, "\n"), true
	}
	return "", false
}
