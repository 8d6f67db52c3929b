package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRouter matches (or not) unconditionally and counts invocations.
type stubRouter struct {
	name   string
	result *RouteResult
	trace  []StageTrace
	calls  int
}

func (s *stubRouter) Name() string { return s.name }

func (s *stubRouter) Route(_ context.Context, _ string, _ *RoutingContext) (*RouteResult, []StageTrace) {
	s.calls++
	return s.result, s.trace
}

func TestChain_FirstMatchShortCircuits(t *testing.T) {
	first := &stubRouter{name: "echo"}
	second := &stubRouter{name: "command", result: &RouteResult{Name: "linux_command"}}
	third := &stubRouter{name: "greeting", result: &RouteResult{Name: "greeting"}}

	chain := NewChain(first, second, third)
	result := chain.Route(context.Background(), "run: pwd", nil)

	require.NotNil(t, result)
	assert.Equal(t, "linux_command", result.Name)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls, "routers after the first match must not run")
}

func TestChain_FallbackWhenNothingMatches(t *testing.T) {
	a := &stubRouter{name: "echo"}
	b := &stubRouter{name: "greeting"}

	chain := NewChain(a, b)
	result := chain.Route(context.Background(), "explain quantum computing", nil)

	require.NotNil(t, result)
	assert.Equal(t, FallbackName, result.Name)
	assert.True(t, result.ShouldProxy)
	assert.Equal(t, []string{"echo: no match", "greeting: no match"}, result.Tried)
}

func TestChain_EmptyChainFallsBack(t *testing.T) {
	result := NewChain().Route(context.Background(), "anything", nil)
	require.NotNil(t, result)
	assert.True(t, result.ShouldProxy)
	assert.Empty(t, result.Tried)
}

func TestChain_TriedIncludesMatchingRouter(t *testing.T) {
	miss := &stubRouter{name: "echo"}
	hit := &stubRouter{
		name:   "greeting",
		result: &RouteResult{Name: "greeting", Content: "Hi (quick response)"},
		trace: []StageTrace{{
			Stage: 1, Kind: KindEmbedding, Confidence: 0.91, Threshold: 0.75, Outcome: OutcomeMatch,
		}},
	}

	result := NewChain(miss, hit).Route(context.Background(), "hello", nil)

	require.Len(t, result.Tried, 2)
	assert.Equal(t, "echo: no match", result.Tried[0])
	assert.Contains(t, result.Tried[1], "greeting: matched at stage 1/1")
	assert.Contains(t, result.Tried[1], "0.910")
}

func TestChain_PreFilterSummary(t *testing.T) {
	rejected := &stubRouter{
		name:  "greeting",
		trace: []StageTrace{{Stage: 0, Kind: KindPreFilter, Outcome: OutcomeSkipped, Detail: "message too long (4001 chars)"}},
	}

	result := NewChain(rejected).Route(context.Background(), "long...", nil)
	require.Len(t, result.Tried, 1)
	assert.Equal(t, "greeting: pre-filter rejected (message too long (4001 chars))", result.Tried[0])
}

func TestChain_MatchCarriesTrace(t *testing.T) {
	trace := []StageTrace{{Stage: 1, Kind: KindLLM, Confidence: 0.8, Outcome: OutcomeMatch}}
	hit := &stubRouter{name: "summarize", result: &RouteResult{Name: "summarize"}, trace: trace}

	result := NewChain(hit).Route(context.Background(), "summarize this", nil)
	assert.Equal(t, trace, result.Trace)
}
