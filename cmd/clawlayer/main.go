// clawlayer is an OpenAI-compatible gateway that answers trivial requests
// locally (tool echoes, command shortcuts, greetings, summaries) and
// proxies everything else to a real LLM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/gateway"
	"github.com/openclaw/clawlayer/internal/monitoring"
	"github.com/openclaw/clawlayer/internal/provider"
	"github.com/openclaw/clawlayer/internal/router"
)

func main() {
	var (
		configPath string
		port       int
		verbose    bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "clawlayer.yaml", "path to YAML configuration")
	flag.IntVar(&port, "port", 0, "listen port (overrides config)")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.BoolVar(&debug, "vv", false, "trace logging")
	flag.Parse()

	// .env is optional; explicit env vars win either way.
	_ = godotenv.Load()

	setupLogging(verbose, debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("load configuration")
	}
	if port != 0 {
		cfg.Port = port
	}

	deps := &router.Deps{
		Embedding:    buildEmbeddingIndex(cfg),
		NewEmbedding: buildEmbeddingIndex,
	}

	var store *monitoring.Store
	if cfg.StatsDBPath != "" {
		store, err = monitoring.OpenStore(cfg.StatsDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.StatsDBPath).Msg("open stats store")
		}
	}

	gw, err := gateway.New(cfg, gateway.Options{
		ConfigPath: configPath,
		Deps:       deps,
		Store:      store,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("assemble gateway")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("gateway stopped")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown incomplete")
		}
	}
}

func setupLogging(verbose, debug bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if debug {
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}).With().Timestamp().Logger()
}

// buildEmbeddingIndex embeds the configured utterances up front so the
// first request pays no warm-up cost. A missing or failing embedding
// backend is not fatal; semantic routers then rely on their LLM stages.
func buildEmbeddingIndex(cfg *config.Config) router.EmbeddingMatcher {
	backend := cfg.EmbeddingBackend()
	if backend == nil {
		log.Info().Msg("no embedding provider configured")
		return nil
	}

	routes := make(map[string][]string)
	for _, name := range cfg.SemanticRouterPriority {
		rc := cfg.Router(name)
		if rc == nil || !rc.Enabled || len(rc.Options.Utterances) == 0 {
			continue
		}
		routes[name] = rc.Options.Utterances
	}
	if len(routes) == 0 {
		log.Info().Msg("no semantic routers with utterances; skipping embedding index")
		return nil
	}

	index := provider.NewEmbeddingIndex(provider.NewEmbedClient(backend, backend.Model("embed")))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := index.Build(ctx, routes); err != nil {
		log.Warn().Err(err).Msg("embedding index unavailable")
		return nil
	}
	return index
}
