package router

import (
	"context"

	"github.com/openclaw/clawlayer/internal/config"
)

// EchoRouter returns tool execution results verbatim, skipping the LLM
// entirely. It matches only tool turns whose originating tool is the
// configured sentinel (the shell-execution tool by default).
type EchoRouter struct {
	toolName string
}

// NewEchoRouter builds an echo router for the given sentinel tool name.
func NewEchoRouter(toolName string) *EchoRouter {
	if toolName == "" {
		toolName = config.DefaultEchoToolName
	}
	return &EchoRouter{toolName: toolName}
}

func (r *EchoRouter) Name() string { return "echo" }

// Route matches when the last turn is a tool result whose call resolves
// back to the sentinel tool. Unresolvable calls are a no-match, never an
// error.
func (r *EchoRouter) Route(_ context.Context, message string, rctx *RoutingContext) (*RouteResult, []StageTrace) {
	if rctx == nil || rctx.Role != "tool" || rctx.ToolCallID == "" {
		return nil, nil
	}
	if findToolFunction(rctx.Messages, rctx.ToolCallID) != r.toolName {
		return nil, nil
	}
	return &RouteResult{Name: "echo", Content: message}, nil
}
