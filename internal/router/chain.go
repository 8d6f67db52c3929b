package router

import (
	"context"
	"fmt"
)

// FallbackName is the synthetic chain result meaning "no local router
// matched; forward to the real LLM".
const FallbackName = "fallback"

// Chain tries routers in priority order and always produces a result:
// the first match, or the synthetic proxy fallback.
type Chain struct {
	routers []Router
}

// NewChain builds a chain over routers in the given priority order.
func NewChain(routers ...Router) *Chain {
	return &Chain{routers: routers}
}

// Routers returns the chained routers in priority order.
func (c *Chain) Routers() []Router {
	return c.routers
}

// Route evaluates routers in order, short-circuiting at the first match.
// Routers after the first match are never invoked. The returned result
// carries a summary line for every router tried.
func (c *Chain) Route(ctx context.Context, message string, rctx *RoutingContext) *RouteResult {
	tried := make([]string, 0, len(c.routers))

	for _, r := range c.routers {
		result, trace := r.Route(ctx, message, rctx)
		if result != nil {
			result.Trace = trace
			result.Tried = append(tried, summarizeAttempt(r.Name(), trace, true))
			return result
		}
		tried = append(tried, summarizeAttempt(r.Name(), trace, false))
	}

	return &RouteResult{
		Name:        FallbackName,
		ShouldProxy: true,
		Tried:       tried,
	}
}

// summarizeAttempt renders one router attempt for the diagnostic list.
func summarizeAttempt(name string, trace []StageTrace, matched bool) string {
	verdict := "no match"
	if matched {
		verdict = "match"
	}
	if len(trace) == 0 {
		return fmt.Sprintf("%s: %s", name, verdict)
	}
	if trace[0].Stage == 0 {
		return fmt.Sprintf("%s: pre-filter rejected (%s)", name, trace[0].Detail)
	}
	last := trace[len(trace)-1]
	if matched {
		return fmt.Sprintf("%s: matched at stage %d/%d (%s, confidence %.3f)",
			name, last.Stage, len(trace), last.Kind, last.Confidence)
	}
	return fmt.Sprintf("%s: no match after %d stage(s)", name, len(trace))
}
