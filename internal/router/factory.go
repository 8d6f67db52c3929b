package router

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/provider"
)

// Kind is the closed set of constructible router kinds. A static switch on
// this set replaces the original's runtime registration table, so an
// unknown name is a configuration error instead of a silent nil.
type Kind string

const (
	KindEcho          Kind = "echo"
	KindCommand       Kind = "command"
	KindQuick         Kind = "quick"
	KindGreetingRoute Kind = "greeting"
	KindSummarize     Kind = "summarize"
)

// Deps carries the shared provider-backed collaborators the factory wires
// into semantic routers. Embedding may be nil when no embedding provider is
// configured; affected stages then trace as "no matcher" and the intent
// falls through to its remaining stages or to the proxy.
type Deps struct {
	Embedding EmbeddingMatcher

	// NewEmbedding rebuilds the embedding index for a configuration. Set
	// by callers that own an embedding backend; configuration reloads use
	// it to refresh Embedding so utterance changes take effect without a
	// restart. May be nil.
	NewEmbedding func(cfg *config.Config) EmbeddingMatcher

	// NewCompleter builds a chat client for an LLM verification stage.
	// Defaults to provider.NewChatClient.
	NewCompleter func(p *config.Provider, model string) Completer
}

func (d *Deps) completer(p *config.Provider, model string) Completer {
	if d.NewCompleter != nil {
		return d.NewCompleter(p, model)
	}
	return provider.NewChatClient(p, model)
}

// Default cascade thresholds used when a semantic router has utterances but
// no explicit cascade_stages in its configuration.
const (
	defaultEmbeddingThreshold = 0.75
	defaultLLMThreshold       = 0.6
)

// NewRouter constructs one router by kind from its configuration.
// Returns nil (no error) for disabled routers.
func NewRouter(kind Kind, cfg *config.Config, deps *Deps) (Router, error) {
	rc := cfg.Router(string(kind))
	if rc == nil || !rc.Enabled {
		return nil, nil
	}

	switch kind {
	case KindEcho:
		return NewEchoRouter(rc.Options.ToolName), nil
	case KindCommand:
		return NewCommandRouter(rc.Options.Prefix), nil
	case KindQuick:
		return NewQuickRouter(rc.Options.Patterns)
	case KindGreetingRoute:
		return NewGreetingRouter(buildStages(string(kind), rc, cfg, deps)), nil
	case KindSummarize:
		return NewSummarizeRouter(buildStages(string(kind), rc, cfg, deps)), nil
	default:
		return nil, fmt.Errorf("unknown router kind %q", kind)
	}
}

// BuildChain assembles the router chain from the configured priority lists,
// fast routers first.
func BuildChain(cfg *config.Config, deps *Deps) (*Chain, error) {
	if deps == nil {
		deps = &Deps{}
	}
	var routers []Router

	names := append(append([]string{}, cfg.FastRouterPriority...), cfg.SemanticRouterPriority...)
	for _, name := range names {
		r, err := NewRouter(Kind(name), cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build router %q: %w", name, err)
		}
		if r == nil {
			continue
		}
		routers = append(routers, r)
	}

	enabled := make([]string, 0, len(routers))
	for _, r := range routers {
		enabled = append(enabled, r.Name())
	}
	log.Info().Strs("routers", enabled).Msg("router chain built")

	return NewChain(routers...), nil
}

// buildStages turns an intent's stage descriptors into cascade stages.
// Without explicit descriptors a default cascade is synthesized from the
// available providers; with no providers at all the stage list is empty
// and the intent never matches locally.
func buildStages(intent string, rc *config.RouterConfig, cfg *config.Config, deps *Deps) []CascadeStage {
	descriptors := rc.Options.CascadeStages
	if len(descriptors) == 0 {
		return defaultStages(intent, rc, cfg, deps)
	}

	stages := make([]CascadeStage, 0, len(descriptors))
	for _, d := range descriptors {
		switch d.Type {
		case config.StageEmbedding:
			// deps.Embedding may be nil; the engine traces such stages as
			// "no matcher" rather than dropping them silently.
			stages = append(stages, CascadeStage{
				Kind:      KindEmbedding,
				Threshold: d.Threshold,
				Embedding: deps.Embedding,
			})
		case config.StageLLM:
			p := cfg.GetProvider(d.Provider)
			if p == nil {
				log.Warn().Str("intent", intent).Str("provider", d.Provider).
					Msg("cascade stage references unknown provider")
				stages = append(stages, CascadeStage{Kind: KindLLM, Threshold: d.Threshold})
				continue
			}
			model := d.Model
			if model == "" {
				model = p.Model("text")
			}
			stages = append(stages, CascadeStage{
				Kind:      KindLLM,
				Threshold: d.Threshold,
				Verifier:  NewLLMMatcher(deps.completer(p, model), intent, rc.Options.Utterances),
			})
		default:
			log.Warn().Str("intent", intent).Str("type", d.Type).
				Msg("cascade stage has unknown type")
			stages = append(stages, CascadeStage{Threshold: d.Threshold})
		}
	}
	return stages
}

func defaultStages(intent string, rc *config.RouterConfig, cfg *config.Config, deps *Deps) []CascadeStage {
	var stages []CascadeStage
	if deps.Embedding != nil {
		stages = append(stages, CascadeStage{
			Kind:      KindEmbedding,
			Threshold: defaultEmbeddingThreshold,
			Embedding: deps.Embedding,
		})
	}
	if p := cfg.TextBackend(); p != nil && len(rc.Options.Utterances) > 0 {
		stages = append(stages, CascadeStage{
			Kind:      KindLLM,
			Threshold: defaultLLMThreshold,
			Verifier:  NewLLMMatcher(deps.completer(p, p.Model("text")), intent, rc.Options.Utterances),
		})
	}
	return stages
}
