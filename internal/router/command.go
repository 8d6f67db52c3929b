package router

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/utils"
)

// CommandRouter turns "run: <command>" messages into a synthesized exec
// tool call without a round trip to the LLM.
type CommandRouter struct {
	prefix string // lowercased
}

// NewCommandRouter builds a command router with the given prefix.
func NewCommandRouter(prefix string) *CommandRouter {
	if prefix == "" {
		prefix = config.DefaultCommandPrefix
	}
	return &CommandRouter{prefix: strings.ToLower(prefix)}
}

func (r *CommandRouter) Name() string { return "command" }

// Route matches case-insensitively anywhere in the message and extracts the
// text after the prefix as the command.
func (r *CommandRouter) Route(_ context.Context, message string, _ *RoutingContext) (*RouteResult, []StageTrace) {
	idx := strings.Index(strings.ToLower(message), r.prefix)
	if idx < 0 {
		return nil, nil
	}
	command := strings.TrimSpace(message[idx+len(r.prefix):])

	args, err := utils.MarshalNoEscape(map[string]any{
		"command":    command,
		"pty":        false,
		"background": false,
	})
	if err != nil {
		// Marshal of plain strings cannot realistically fail; treat as no match.
		log.Warn().Err(err).Msg("command router: encode arguments failed")
		return nil, nil
	}

	return &RouteResult{
		Name: "linux_command",
		ToolCalls: []ToolCall{{
			ID:   "call_" + uuid.NewString(),
			Type: "function",
			Function: ToolFunction{
				Name:      config.DefaultEchoToolName,
				Arguments: string(args),
			},
		}},
	}, nil
}
