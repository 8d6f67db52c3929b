package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/clawlayer/internal/config"
)

func chainTestConfig() *config.Config {
	return &config.Config{
		Providers: map[string]*config.Provider{
			"local": {
				Type: config.ProviderOllama,
				URL:  "http://localhost:11434",
				Models: map[string]string{
					"embed": "nomic-embed-text",
					"text":  "qwen2.5:3b",
				},
			},
		},
		EmbeddingProvider:      "local",
		TextProvider:           "local",
		FastRouterPriority:     []string{"echo", "command"},
		SemanticRouterPriority: []string{"greeting", "summarize"},
		Routers: map[string]*config.RouterConfig{
			"echo":    {Enabled: true},
			"command": {Enabled: true, Options: config.RouterOptions{Prefix: "run:"}},
			"greeting": {Enabled: true, Options: config.RouterOptions{
				Utterances: []string{"hello", "hi"},
			}},
			"summarize": {Enabled: false},
		},
	}
}

func TestBuildChain_PriorityOrderSkipsDisabled(t *testing.T) {
	deps := &Deps{
		Embedding: &stubEmbedding{route: "greeting", score: 0.9},
		NewCompleter: func(_ *config.Provider, _ string) Completer {
			return &stubCompleter{content: `{"is_match": false, "confidence": 0.1}`}
		},
	}

	chain, err := BuildChain(chainTestConfig(), deps)
	require.NoError(t, err)

	routers := chain.Routers()
	require.Len(t, routers, 3, "disabled summarize router must be skipped")
	assert.Equal(t, "echo", routers[0].Name())
	assert.Equal(t, "command", routers[1].Name())
	assert.Equal(t, "greeting", routers[2].Name())
}

func TestBuildChain_UnknownRouterNameErrors(t *testing.T) {
	cfg := chainTestConfig()
	cfg.FastRouterPriority = []string{"teleport"}
	cfg.Routers["teleport"] = &config.RouterConfig{Enabled: true}

	_, err := BuildChain(cfg, &Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestBuildChain_EndToEndCommandMessage(t *testing.T) {
	deps := &Deps{Embedding: &stubEmbedding{route: "greeting", score: 0.1}}
	chain, err := BuildChain(chainTestConfig(), deps)
	require.NoError(t, err)

	result := chain.Route(context.Background(), "run: uname -a", &RoutingContext{Role: "user"})
	require.NotNil(t, result)
	assert.Equal(t, "linux_command", result.Name)
}

func TestBuildStages_ExplicitDescriptors(t *testing.T) {
	cfg := chainTestConfig()
	rc := &config.RouterConfig{Enabled: true, Options: config.RouterOptions{
		Utterances: []string{"hello"},
		CascadeStages: []config.StageConfig{
			{Type: config.StageEmbedding, Threshold: 0.8},
			{Type: config.StageLLM, Provider: "local", Threshold: 0.6},
		},
	}}

	completer := &stubCompleter{content: `{"is_match": true, "confidence": 0.7}`}
	deps := &Deps{
		Embedding: &stubEmbedding{route: "greeting", score: 0.5},
		NewCompleter: func(_ *config.Provider, model string) Completer {
			assert.Equal(t, "qwen2.5:3b", model)
			return completer
		},
	}

	stages := buildStages("greeting", rc, cfg, deps)
	require.Len(t, stages, 2)
	assert.Equal(t, KindEmbedding, stages[0].Kind)
	assert.Equal(t, 0.8, stages[0].Threshold)
	assert.Equal(t, KindLLM, stages[1].Kind)
	require.NotNil(t, stages[1].Verifier)

	// Low embedding score falls through to the verification stage.
	result := EvaluateCascade(context.Background(), "hello", stages, "greeting")
	assert.True(t, result.Matched)
	assert.Equal(t, 2, result.Stage)
}

func TestBuildStages_UnknownProviderYieldsMatcherlessStage(t *testing.T) {
	cfg := chainTestConfig()
	rc := &config.RouterConfig{Enabled: true, Options: config.RouterOptions{
		CascadeStages: []config.StageConfig{
			{Type: config.StageLLM, Provider: "nope", Threshold: 0.6},
		},
	}}

	stages := buildStages("greeting", rc, cfg, &Deps{})
	require.Len(t, stages, 1)
	assert.Nil(t, stages[0].Verifier)

	result := EvaluateCascade(context.Background(), "hello", stages, "greeting")
	assert.False(t, result.Matched)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, OutcomeSkipped, result.Trace[0].Outcome)
}

func TestDefaultStages_SynthesizedFromProviders(t *testing.T) {
	cfg := chainTestConfig()
	rc := cfg.Routers["greeting"]

	deps := &Deps{
		Embedding: &stubEmbedding{route: "greeting", score: 0.9},
		NewCompleter: func(_ *config.Provider, _ string) Completer {
			return &stubCompleter{content: `{"is_match": false, "confidence": 0}`}
		},
	}

	stages := defaultStages("greeting", rc, cfg, deps)
	require.Len(t, stages, 2)
	assert.Equal(t, defaultEmbeddingThreshold, stages[0].Threshold)
	assert.Equal(t, defaultLLMThreshold, stages[1].Threshold)
}

func TestDefaultStages_NoProvidersNoStages(t *testing.T) {
	cfg := chainTestConfig()
	cfg.Providers = nil
	cfg.TextProvider = ""
	rc := cfg.Routers["greeting"]

	stages := defaultStages("greeting", rc, cfg, &Deps{})
	assert.Empty(t, stages)
}
