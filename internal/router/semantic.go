package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/clawlayer/internal/config"
)

// greetingContent is the canned greeting reply.
const greetingContent = "Hi (quick response)"

// summarizeTemplate is the fixed checkpoint-summary structure returned for
// summarize requests.
const summarizeTemplate = `## Goal
No user goal provided in the conversation.

## Constraints & Preferences
- (none)

## Progress
### Done
- [x] None

### In Progress
- [ ] None

### Blocked
- [ ] None

## Key Decisions
- **None**

## Next Steps
1. None

## Critical Context
- (none)`

// PreFilter rejects messages before any classification cost is paid.
// A non-empty return is the rejection reason.
type PreFilter func(message string) string

// SemanticRouter matches one intent through the shared cascade engine.
// Everything intent-specific — name, canned content, pre-filter — is
// supplied at construction.
type SemanticRouter struct {
	intent    string
	content   string
	stages    []CascadeStage
	preFilter PreFilter
}

// NewSemanticRouter builds a cascade-backed router for an intent.
func NewSemanticRouter(intent, content string, stages []CascadeStage, preFilter PreFilter) *SemanticRouter {
	return &SemanticRouter{intent: intent, content: content, stages: stages, preFilter: preFilter}
}

// NewGreetingRouter builds the greeting intent router.
func NewGreetingRouter(stages []CascadeStage) *SemanticRouter {
	return NewSemanticRouter("greeting", greetingContent, stages, greetingPreFilter)
}

// NewSummarizeRouter builds the summarize intent router.
func NewSummarizeRouter(stages []CascadeStage) *SemanticRouter {
	return NewSemanticRouter("summarize", summarizeTemplate, stages, nil)
}

func (r *SemanticRouter) Name() string { return r.intent }

// Route applies the pre-filter, then delegates to the cascade engine.
// The trace is returned in the no-match case too.
func (r *SemanticRouter) Route(ctx context.Context, message string, _ *RoutingContext) (*RouteResult, []StageTrace) {
	if r.preFilter != nil {
		if reason := r.preFilter(message); reason != "" {
			return nil, []StageTrace{{
				Stage:   0,
				Kind:    KindPreFilter,
				Outcome: OutcomeSkipped,
				Detail:  reason,
			}}
		}
	}

	result := EvaluateCascade(ctx, message, r.stages, r.intent)
	if !result.Matched {
		return nil, result.Trace
	}
	return &RouteResult{
		Name:    r.intent,
		Content: r.content,
		Trace:   result.Trace,
	}, result.Trace
}

// greetingPreFilter rejects messages that cannot be greetings: anything
// over the length bound, or multi-paragraph text that reads like pasted
// instructions rather than a salutation.
func greetingPreFilter(message string) string {
	if len(message) > config.DefaultGreetingMaxLen {
		return fmt.Sprintf("message too long (%d chars)", len(message))
	}
	if strings.Contains(message, "\n\n") {
		return "multi-paragraph message, not a greeting"
	}
	return ""
}
