package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/api"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/config"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/coverage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/events"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/extract"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/fetch"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/metrics"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/pipeline"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/rewrite"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/session"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/storage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/synthesize"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	flag.StringVar(&overrides.DataDir, "data-dir", "", "artifact data directory")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("storyteller starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Data directory + stores
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to create data directory")
	}
	data := storage.NewLocalStore(cfg.DataDir)
	covStore := coverage.NewStore(data, log.With().Str("component", "coverage").Logger())

	// Session token store + file watcher
	sessions := session.NewStore(cfg.SessionTTL)
	defer sessions.Stop()
	watcher := session.NewTokenWatcher(sessions, cfg.RendererTokenFile, log)
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("session token watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	// Adapters
	fetcher := fetch.NewRendererClient(cfg.RendererURL, cfg.RendererPageCount, sessions, cfg.RendererTimeout)

	extractor, err := extract.NewCommandExtractor(cfg.ExtractCmd, cfg.ExtractTimeout, log.With().Str("component", "extract").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid extract command")
	}

	var rewriter rewrite.Rewriter
	if cfg.OpenAIAPIKey != "" {
		rewriter, err = rewrite.NewOpenAIRewriter(cfg.OpenAIAPIKey, cfg.RewriteModel, cfg.RewriteTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure rewriter")
		}
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, narration rewrite disabled")
	}

	providers := make(map[string]synthesize.Provider)
	if cfg.ElevenLabsAPIKey != "" {
		el := synthesize.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice, cfg.ElevenLabsModel, cfg.SynthesisTimeout)
		providers[el.Name()] = el
	}
	if cfg.AWSRegion != "" {
		polly, err := synthesize.NewPollyClient(ctx, cfg.AWSRegion, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.PollyVoice)
		if err != nil {
			log.Warn().Err(err).Msg("polly provider unavailable")
		} else {
			providers[polly.Name()] = polly
		}
	}
	if len(providers) == 0 {
		log.Warn().Msg("no synthesis providers configured")
	}

	// Pipeline
	bus := events.NewBus()
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Coverage:             covStore,
		Resolver:             coverage.NewResolver(cfg.MinRemainingPositions),
		Data:                 data,
		Fetcher:              fetcher,
		Extractor:            extractor,
		Rewriter:             rewriter,
		Providers:            providers,
		Bus:                  bus,
		IntervalSeconds:      cfg.BenchmarkIntervalSeconds,
		DefaultTargetMinutes: cfg.TargetDurationMinutes,
		MaxSynthesisChars:    cfg.MaxSynthesisChars,
		Log:                  log,
	})

	prometheus.MustRegister(metrics.NewCollector(engineStats{orch: orch, bus: bus}))

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, api.Deps{
		Coverage:           covStore,
		Data:               data,
		Runner:             orch,
		Bus:                bus,
		Tokens:             sessions,
		ProviderNames:      orch.ProviderNames(),
		RewriterConfigured: rewriter != nil,
		Version:            version,
		StartTime:          startTime,
	}, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("storyteller stopped")
}

// engineStats adapts the orchestrator and event bus to the metrics collector.
type engineStats struct {
	orch *pipeline.Orchestrator
	bus  *events.Bus
}

func (s engineStats) ActiveRunCount() int     { return s.orch.ActiveRunCount() }
func (s engineStats) SSESubscriberCount() int { return s.bus.SubscriberCount() }
