// Package gateway is the HTTP front door: the OpenAI-compatible chat
// endpoint backed by the router chain, and the dashboard web API.
//
// DESIGN: Request flow:
//   - handleChatCompletions(): parse, route, render or proxy
//   - respondLocal():          canned completion, buffered or SSE
//   - respondProxy():          forward to the upstream and relay
//
// The monitoring web API lives in webapi.go.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/monitoring"
	"github.com/openclaw/clawlayer/internal/proxy"
	"github.com/openclaw/clawlayer/internal/router"
)

// Gateway owns the router chain, the fallback proxy, and the monitoring
// surfaces. Configuration reloads swap the chain atomically under mu.
type Gateway struct {
	mu    sync.RWMutex
	cfg   *config.Config
	chain *router.Chain
	prx   *proxy.Proxy

	configPath string
	deps       *router.Deps

	stats       *monitoring.StatsCollector
	store       *monitoring.Store
	broadcaster *monitoring.Broadcaster
	tokens      *monitoring.TokenCounter

	server *http.Server
}

// Options are the optional collaborators of New. Store may be nil when
// persistence is disabled.
type Options struct {
	ConfigPath string
	Deps       *router.Deps
	Store      *monitoring.Store
}

// New assembles a gateway from configuration. The router chain is built
// eagerly so misconfiguration fails at startup, not on first request.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	if opts.Deps == nil {
		opts.Deps = &router.Deps{}
	}
	chain, err := router.BuildChain(cfg, opts.Deps)
	if err != nil {
		return nil, fmt.Errorf("build router chain: %w", err)
	}

	g := &Gateway{
		cfg:         cfg,
		chain:       chain,
		prx:         proxy.New(cfg.ProxyURL, cfg.ProxyModel),
		configPath:  opts.ConfigPath,
		deps:        opts.Deps,
		stats:       monitoring.NewStatsCollector(config.DefaultMaxRecentLogs),
		store:       opts.Store,
		broadcaster: monitoring.NewBroadcaster(),
		tokens:      monitoring.NewTokenCounter(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", g.handleChatCompletions)
	mux.HandleFunc("/v1/models", g.handleModels)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/api/stats", g.handleStats)
	mux.HandleFunc("/api/logs", g.handleLogs)
	mux.HandleFunc("/api/routers", g.handleRouters)
	mux.HandleFunc("/api/test", g.handleTest)
	mux.HandleFunc("/api/config", g.handleConfig)
	mux.HandleFunc("/api/config/reload", g.handleConfigReload)
	mux.HandleFunc("/api/live", g.handleLive)

	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  config.DefaultReadTimeout,
		WriteTimeout: config.DefaultWriteTimeout,
	}
	return g, nil
}

// Handler exposes the mux for tests.
func (g *Gateway) Handler() http.Handler { return g.server.Handler }

// Start blocks serving HTTP until Shutdown or a listener error.
func (g *Gateway) Start() error {
	log.Info().Str("addr", g.server.Addr).Msg("gateway listening")
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the stats store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	if g.store != nil {
		if cerr := g.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// reload re-reads the configuration file and swaps in a fresh chain and
// proxy. The embedding index is rebuilt when a builder is available so
// utterance and provider changes take effect immediately. On any error the
// running configuration stays in place.
func (g *Gateway) reload() error {
	if g.configPath == "" {
		return fmt.Errorf("no config path to reload from")
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if g.deps.NewEmbedding != nil {
		g.deps.Embedding = g.deps.NewEmbedding(cfg)
	}
	chain, err := router.BuildChain(cfg, g.deps)
	if err != nil {
		return fmt.Errorf("rebuild router chain: %w", err)
	}

	g.mu.Lock()
	g.cfg = cfg
	g.chain = chain
	g.prx = proxy.New(cfg.ProxyURL, cfg.ProxyModel)
	g.mu.Unlock()

	log.Info().Str("path", g.configPath).Msg("configuration reloaded")
	return nil
}

func (g *Gateway) currentChain() *router.Chain {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.chain
}

func (g *Gateway) currentProxy() *proxy.Proxy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.prx
}

func (g *Gateway) currentConfig() *config.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
