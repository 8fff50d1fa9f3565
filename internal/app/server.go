package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lattice-run/promptrouter/internal/appconfig"
	"github.com/lattice-run/promptrouter/internal/circuitbreaker"
	"github.com/lattice-run/promptrouter/internal/confidential"
	"github.com/lattice-run/promptrouter/internal/dispatcher"
	"github.com/lattice-run/promptrouter/internal/enhancer"
	"github.com/lattice-run/promptrouter/internal/events"
	"github.com/lattice-run/promptrouter/internal/health"
	"github.com/lattice-run/promptrouter/internal/httpapi"
	"github.com/lattice-run/promptrouter/internal/idempotency"
	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/lattice-run/promptrouter/internal/logging"
	"github.com/lattice-run/promptrouter/internal/metrics"
	"github.com/lattice-run/promptrouter/internal/orchestrate"
	"github.com/lattice-run/promptrouter/internal/ratelimit"
	"github.com/lattice-run/promptrouter/internal/registryclient"
	"github.com/lattice-run/promptrouter/internal/selector"
	"github.com/lattice-run/promptrouter/internal/temporal"
	"github.com/lattice-run/promptrouter/internal/tracing"
)

// Server owns the router's assembled HTTP surface: the chi mux and every
// stage the orchestrator dispatches to.
type Server struct {
	cfg appconfig.Config

	r *chi.Mux

	orchestrator    *orchestrate.Orchestrator
	metrics         *metrics.Registry
	eventBus        *events.Bus
	healthTracker   *health.Tracker
	healthProber    *health.Prober
	rateLimiter     *ratelimit.Limiter
	idempotency     *idempotency.Cache
	circuitBreaker  *circuitbreaker.Breaker
	temporalMgr     *temporal.Manager
	tracingShutdown func(context.Context) error

	logger *slog.Logger
}

// NewServer wires the full ambient stack (metrics, events, health,
// rate limiting, idempotency, decision-audit logging) around an
// Orchestrator built from cfg, and mounts the HTTP routes.
func NewServer(cfg appconfig.Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	tracingShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "promptrouter",
	})
	if err != nil {
		logger.Warn("otel tracing unavailable, continuing without it", slog.String("error", err.Error()))
		tracingShutdown = func(context.Context) error { return nil }
	}

	classifierLLM := llmclient.New(cfg.AuxLLMBaseURL, cfg.AuxLLMAPIKey, &http.Client{Timeout: cfg.ClassifierTimeout, Transport: tracing.HTTPTransport(nil)})
	selectorLLM := llmclient.New(cfg.AuxLLMBaseURL, cfg.AuxLLMAPIKey, &http.Client{Timeout: cfg.SelectorTimeout, Transport: tracing.HTTPTransport(nil)})
	enhancerLLM := llmclient.New(cfg.AuxLLMBaseURL, cfg.AuxLLMAPIKey, &http.Client{Timeout: cfg.EnhancerTimeout, Transport: tracing.HTTPTransport(nil)})

	registry := registryclient.New(cfg.RegistryBaseURL, &http.Client{Timeout: cfg.RegistryTimeout, Transport: tracing.HTTPTransport(nil)})
	disp := dispatcher.New(cfg.DispatchBaseURL, &http.Client{Timeout: cfg.DispatchTimeout, Transport: tracing.HTTPTransport(nil)})

	orch := orchestrate.New(
		confidential.New(classifierLLM, cfg.ClassifierModelID),
		selector.New(selectorLLM, cfg.SelectorModelID),
		enhancer.New(enhancerLLM, cfg.EnhancerModelID),
		registry,
		disp,
		cfg.ConfidentialModelID,
	)

	m := metrics.New()
	bus := events.NewBus()
	ht := health.NewTracker(health.DefaultConfig(), health.WithEventBus(bus))
	rl := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Second)
	idem := idempotency.New(5*time.Minute, 10000)
	cb := circuitbreaker.New()

	prober := health.NewProber(health.DefaultProberConfig(), ht, []health.Probeable{
		health.NewStaticTarget("registry", cfg.RegistryBaseURL+"/api/models"),
		health.NewStaticTarget("dispatch", cfg.DispatchBaseURL+"/chat/completions"),
		health.NewStaticTarget("aux-llm", cfg.AuxLLMBaseURL+"/chat/completions"),
	}, logger)
	prober.Start()

	var tm *temporal.Manager
	if cfg.TemporalEnabled {
		acts := temporal.NewActivities(logger)
		var err error
		tm, err = temporal.New(temporal.Config{
			HostPort:  cfg.TemporalHostPort,
			Namespace: "default",
			TaskQueue: "promptrouter-decision-audit",
		}, acts)
		if err != nil {
			logger.Warn("temporal unavailable, falling back to direct audit logging", slog.String("error", err.Error()))
			tm = nil
		} else if err := tm.Start(); err != nil {
			logger.Warn("temporal worker failed to start", slog.String("error", err.Error()))
			tm = nil
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware())
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{
		cfg:             cfg,
		r:               r,
		orchestrator:    orch,
		metrics:         m,
		eventBus:        bus,
		healthTracker:   ht,
		healthProber:    prober,
		rateLimiter:     rl,
		idempotency:     idem,
		circuitBreaker:  cb,
		temporalMgr:     tm,
		tracingShutdown: tracingShutdown,
		logger:          logger,
	}

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Orchestrator:   orch,
		Metrics:        m,
		EventBus:       bus,
		Health:         ht,
		Temporal:       tm,
		CircuitBreaker: cb,
		RateLimiter:    rl,
		Idempotency:    idem,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Reload swaps in a new configuration. Only the pieces that are safe and
// meaningful to change without dropping in-flight requests are applied —
// the log level only; the rate limiter keeps the thresholds it was built
// with — mirroring how the teacher's own
// SIGHUP reload only ever touched routing policy defaults, never
// long-lived connections.
func (s *Server) Reload(cfg appconfig.Config) {
	s.cfg = cfg
	s.logger = logging.Setup(cfg.LogLevel)
}

// Close releases resources with a lifetime longer than a single request:
// the health prober loop, the Temporal worker and client (if one was
// started), and the OTel tracer provider (flushing any pending spans).
func (s *Server) Close() error {
	if s.healthProber != nil {
		s.healthProber.Stop()
	}
	if s.temporalMgr != nil {
		s.temporalMgr.Stop()
	}
	if s.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracingShutdown(ctx); err != nil {
			s.logger.Warn("otel tracer shutdown error", slog.String("error", err.Error()))
		}
	}
	return nil
}
