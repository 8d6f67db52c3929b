// Package config loads and persists the gateway configuration.
//
// Configuration comes from two layers: environment variables provide the
// minimal defaults (proxy URL, models, port), and an optional YAML file adds
// providers, router priorities, and per-router options. The YAML layer wins
// where both are present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the gateway.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Stage kinds for cascade stage descriptors.
const (
	StageEmbedding = "embedding"
	StageLLM       = "llm"
)

// Provider describes one embedding/LLM backend.
type Provider struct {
	Type   string            `yaml:"type"`
	URL    string            `yaml:"url"`
	APIKey string            `yaml:"api_key,omitempty"`
	Models map[string]string `yaml:"models,omitempty"`
}

// Model returns the model configured for a capability ("embed", "text").
func (p *Provider) Model(capability string) string {
	if p == nil {
		return ""
	}
	return p.Models[capability]
}

// StageConfig is one cascade stage descriptor for a semantic router.
type StageConfig struct {
	Provider  string  `yaml:"provider"`
	Model     string  `yaml:"model"`
	Threshold float64 `yaml:"threshold"`
	Type      string  `yaml:"type"`
}

// PatternResponse is one regex/canned-response pair for the quick router.
type PatternResponse struct {
	Pattern  string `yaml:"pattern"`
	Response string `yaml:"response"`
}

// RouterOptions holds the per-router literal options.
type RouterOptions struct {
	Prefix        string            `yaml:"prefix,omitempty"`
	ToolName      string            `yaml:"tool_name,omitempty"`
	Patterns      []PatternResponse `yaml:"patterns,omitempty"`
	Utterances    []string          `yaml:"utterances,omitempty"`
	CascadeStages []StageConfig     `yaml:"cascade_stages,omitempty"`
}

// RouterConfig enables a router and carries its options.
type RouterConfig struct {
	Enabled bool          `yaml:"enabled"`
	Options RouterOptions `yaml:"options,omitempty"`
}

// Config is the full gateway configuration.
type Config struct {
	Port int `yaml:"port"`

	Providers map[string]*Provider `yaml:"providers,omitempty"`

	// Provider assignments by capability.
	EmbeddingProvider string `yaml:"embedding_provider,omitempty"`
	TextProvider      string `yaml:"text_provider,omitempty"`

	// Downstream backend for the proxy fallback.
	ProxyURL   string `yaml:"proxy_url,omitempty"`
	ProxyModel string `yaml:"proxy_model,omitempty"`

	FastRouterPriority     []string                 `yaml:"fast_router_priority,omitempty"`
	SemanticRouterPriority []string                 `yaml:"semantic_router_priority,omitempty"`
	Routers                map[string]*RouterConfig `yaml:"routers,omitempty"`

	// Stats persistence. Empty disables the sqlite store.
	StatsDBPath string `yaml:"stats_db_path,omitempty"`
}

// FromEnv builds a configuration from environment variables alone.
// Works out of the box against a local Ollama with no config file.
func FromEnv() *Config {
	cfg := &Config{
		Port:       DefaultPort,
		ProxyURL:   envOr("OLLAMA_URL", "http://localhost:11434/v1/chat/completions"),
		ProxyModel: envOr("OLLAMA_MODEL", "llama3.2"),

		FastRouterPriority:     []string{"echo", "command"},
		SemanticRouterPriority: []string{"greeting", "summarize"},
		Routers: map[string]*RouterConfig{
			"echo":      {Enabled: true},
			"command":   {Enabled: true, Options: RouterOptions{Prefix: DefaultCommandPrefix}},
			"greeting":  {Enabled: true},
			"summarize": {Enabled: true},
		},
		StatsDBPath: os.Getenv("CLAWLAYER_STATS_DB"),
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		cfg.Port = port
	}

	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	cfg.Providers = map[string]*Provider{
		"local": {
			Type: ProviderOllama,
			URL:  envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
			Models: map[string]string{
				"embed": embedModel,
				"text":  cfg.ProxyModel,
			},
		},
	}
	cfg.EmbeddingProvider = "local"
	cfg.TextProvider = "local"
	return cfg
}

// Load reads the YAML file at path on top of the env defaults.
// A missing file is not an error; env defaults apply unchanged.
func Load(path string) (*Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	// ${VAR} references let API keys live in the environment.
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	return cfg, nil
}

// GetProvider resolves a provider reference by name.
func (c *Config) GetProvider(name string) *Provider {
	if c.Providers == nil {
		return nil
	}
	return c.Providers[name]
}

// EmbeddingBackend returns the provider assigned for embeddings, or nil.
func (c *Config) EmbeddingBackend() *Provider {
	return c.GetProvider(c.EmbeddingProvider)
}

// TextBackend returns the provider assigned for text generation, or nil.
func (c *Config) TextBackend() *Provider {
	return c.GetProvider(c.TextProvider)
}

// Router returns the configuration for a named router, nil when absent.
func (c *Config) Router(name string) *RouterConfig {
	if c.Routers == nil {
		return nil
	}
	return c.Routers[name]
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
