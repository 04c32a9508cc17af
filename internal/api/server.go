package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/config"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/coverage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/events"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/fetch"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/metrics"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/storage"
)

// Deps carries the server's collaborators, constructed in main.
type Deps struct {
	Coverage           *coverage.Store
	Data               *storage.LocalStore
	Runner             PipelineRunner
	Bus                *events.Bus
	Tokens             fetch.TokenSource
	ProviderNames      []string
	RewriterConfigured bool
	Version            string
	StartTime          time.Time
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORSWithOrigins(cfg.AllowedOrigins))
	r.Use(metrics.InstrumentHandler)
	if cfg.RateLimitRPS > 0 {
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Health and metrics — no auth
	health := NewHealthHandler(cfg.DataDir, deps.Tokens, deps.ProviderNames, deps.RewriterConfigured, deps.Version, deps.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))

		playback := NewPlaybackHandler(deps.Runner)
		r.Post("/api/v1/playback", playback.ServeHTTP)

		books := NewBookHandler(deps.Coverage, deps.Data)
		r.Route("/api/v1/books/{asin}", func(r chi.Router) {
			r.Get("/chunks", books.ListChunks)
			r.Get("/chunks/{chunkID}/benchmarks", books.GetBenchmarks)
			r.Get("/chunks/{chunkID}/audio/{artifactID}", books.GetAudio)

			// Destructive routes stay disabled unless an auth token exists.
			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(cfg.AuthToken))
				r.Delete("/chunks/{chunkID}", books.DeleteChunk)
				r.Delete("/chunks/{chunkID}/audio/{artifactID}", books.DeleteAudio)
			})
		})

		sse := NewEventsHandler(deps.Bus)
		r.Get("/api/v1/events", sse.StreamEvents)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
