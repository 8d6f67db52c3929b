// Package router implements the routing core: fast deterministic routers,
// the multi-stage cascade engine for semantic intents, and the priority
// chain that ties them together.
//
// DESIGN: Routers are read-only after construction and shared across
// concurrent requests; all per-request state lives in the arguments and
// return values. A router that does not match returns a nil result — never
// an error — together with whatever diagnostic trace it produced, so the
// chain can attach a full audit trail to every outcome.
package router

import (
	"context"
)

// RoutingContext is the derived view of one inbound request that routers
// need: the last turn's role and tool_call_id, the full turn history for
// tool-origin resolution, and the streaming flag. Built once per request,
// immutable afterward.
type RoutingContext struct {
	Role       string
	ToolCallID string
	Messages   []Message
	Stream     bool
}

// Message is one turn of the conversation, reduced to the fields routing
// cares about.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall mirrors the OpenAI tool-call shape.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction names the called function and carries its JSON-encoded
// arguments.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// RouteResult is the outcome of exactly one router invocation.
// ShouldProxy=true means Content and ToolCalls are ignored and the request
// must be forwarded to the downstream LLM.
type RouteResult struct {
	Name        string
	Content     string
	ToolCalls   []ToolCall
	ShouldProxy bool

	// Trace holds the cascade audit trail of the matching router, empty for
	// fast routers.
	Trace []StageTrace

	// Tried lists every router attempted up to and including this result,
	// as human-readable summaries for logging.
	Tried []string
}

// Router routes one message. A nil result means no match; the returned
// trace (possibly nil) is diagnostic only and is produced in both cases.
type Router interface {
	Name() string
	Route(ctx context.Context, message string, rctx *RoutingContext) (*RouteResult, []StageTrace)
}

// findToolFunction resolves which tool produced a tool_call_id by scanning
// the history backward for the assistant turn that issued the call.
func findToolFunction(messages []Message, toolCallID string) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != "assistant" || len(msg.ToolCalls) == 0 {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Function.Name
			}
		}
	}
	return ""
}
