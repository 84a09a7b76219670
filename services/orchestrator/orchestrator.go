// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires the EduBot HTTP service together.
//
// This package contains the Service type that owns every long-lived
// component: the history store, the LLM backend, the tutor service, the gin
// router with its session middleware, the Prometheus registry and the
// OpenTelemetry tracer provider.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 5000, LLM: llm.Config{Backend: "gemini", GeminiAPIKey: key}}
//	svc, err := orchestrator.New(ctx, cfg, nil)
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
//
// A missing API key is not fatal: the service starts without a backend and
// every POST /chat answers 500 until it is restarted with a key.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/edubot/pkg/extensions"
	"github.com/AleutianAI/edubot/services/llm"
	"github.com/AleutianAI/edubot/services/orchestrator/handlers"
	"github.com/AleutianAI/edubot/services/orchestrator/history"
	"github.com/AleutianAI/edubot/services/orchestrator/middleware"
	"github.com/AleutianAI/edubot/services/orchestrator/observability"
	"github.com/AleutianAI/edubot/services/orchestrator/routes"
	"github.com/AleutianAI/edubot/services/orchestrator/services"
	"github.com/AleutianAI/edubot/web"
)

// ServiceName is reported to the tracer provider and otelgin.
const ServiceName = "edubot"

// History store kinds accepted in Config.HistoryStore.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the EduBot server.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance. Router may be used
// concurrently with Run.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the listener fails, then
	// shuts the server down gracefully and releases every resource.
	//
	// # Outputs
	//
	//   - error: nil after a clean shutdown.
	Run(ctx context.Context) error

	// Router returns the configured gin engine. Used by tests to call the
	// handlers without opening a socket.
	Router() *gin.Engine

	// Close releases the store and flushes the tracer without serving.
	// Run calls it on return; it is safe to call more than once.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds server configuration.
//
// # Examples
//
//	// Minimal config (memory store, gemini, random session secret)
//	cfg := Config{LLM: llm.Config{GeminiAPIKey: key}}
//
//	// OpenAI with badger-backed history and tracing
//	cfg := Config{
//	    Port:         8080,
//	    LLM:          llm.Config{Backend: "openai", OpenAIAPIKey: key},
//	    HistoryStore: "badger",
//	    OTelEndpoint: "otel-collector:4317",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 5000
	Port int

	// LLM selects the backend. Ignored when Backend is set.
	LLM llm.Config

	// Backend overrides the client built from LLM.
	Backend llm.LLMClient

	// SessionSecret signs the session cookie. Empty generates a random
	// secret, so sessions do not survive a restart.
	SessionSecret []byte

	// CookieName defaults to middleware.DefaultCookieName.
	CookieName string

	// SecureCookie marks the cookie Secure (HTTPS only).
	SecureCookie bool

	// HistoryStore is "memory" or "badger". Default: "memory"
	HistoryStore string

	// OTelEndpoint is the OTLP gRPC collector address. Empty disables
	// span export; spans are still created against the no-op provider.
	OTelEndpoint string

	// GinMode sets the gin mode when non-empty.
	GinMode string

	// ExposeBackendErrors returns backend error text to clients.
	ExposeBackendErrors bool

	// AuditLog writes audit events to slog unless opts carries a real
	// AuditLogger.
	AuditLog bool

	// ReadTimeout and WriteTimeout bound each HTTP request.
	// Defaults: 30s and 120s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Fields
//
//   - config: Config with defaults applied
//   - store: History store owned by the service
//   - tutor: Chat exchange logic
//   - registry: Prometheus registry served at /metrics
//   - tracerCleanup: Flushes the tracer provider; nil when export is off
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	router        *gin.Engine
	store         history.Store
	llmClient     llm.LLMClient
	tutor         *services.TutorService
	registry      *prometheus.Registry
	metrics       *observability.ChatMetrics
	tracerCleanup func(context.Context)
	closeOnce     sync.Once
	closeErr      error
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a Service.
//
// # Description
//
// New initializes, in order:
//  1. Config defaults
//  2. OpenTelemetry tracing (only when OTelEndpoint is set)
//  3. Prometheus registry and chat metrics
//  4. The history store
//  5. The LLM backend (a missing API key is logged and tolerated)
//  6. The tutor service and the HTTP router
//
// If opts is nil, DefaultOptions() is used.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil for an unknown store or backend, a bad session secret,
//     or a tracer setup failure.
func New(ctx context.Context, cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}
	if s.config.AuditLog {
		if _, nop := s.opts.AuditLogger.(*extensions.NopAuditLogger); nop || s.opts.AuditLogger == nil {
			s.opts.AuditLogger = extensions.NewSlogAuditLogger(slog.Default())
		}
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := initTracer(ctx, s.config.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	} else {
		slog.Info("OTEL endpoint not configured, span export disabled")
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewChatMetrics(s.registry)

	store, err := openStore(s.config.HistoryStore)
	if err != nil {
		s.cleanup()
		return nil, err
	}
	s.store = store

	if err := s.initLLMClient(ctx); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.tutor = services.NewTutorService(s.store, s.llmClient, s.opts, s.metrics)

	if err := s.initRouter(); err != nil {
		s.cleanup()
		return nil, err
	}

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting EduBot server",
			"port", s.config.Port,
			"backend_configured", s.tutor.BackendAvailable(),
			"history_store", s.config.HistoryStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		slog.Info("Shutting down EduBot server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Router returns the underlying gin engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases all resources held by the service.
func (s *service) Close() error {
	return s.cleanup()
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.CookieName == "" {
		cfg.CookieName = middleware.DefaultCookieName
	}
	cfg.HistoryStore = strings.ToLower(strings.TrimSpace(cfg.HistoryStore))
	if cfg.HistoryStore == "" {
		cfg.HistoryStore = StoreMemory
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

// openStore builds the history store named by kind.
func openStore(kind string) (history.Store, error) {
	switch kind {
	case StoreMemory:
		slog.Info("Using in-process memory history store")
		return history.NewMemoryStore(), nil
	case StoreBadger:
		cfg := history.DefaultBadgerConfig()
		cfg.Logger = slog.Default()
		store, err := history.OpenBadgerStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger history store: %w", err)
		}
		slog.Info("Using in-memory BadgerDB history store")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history store %q (want %q or %q)", kind, StoreMemory, StoreBadger)
	}
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP gRPC trace exporter to send spans to the collector at
// endpoint and installs it as the global tracer provider.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (collector on the local network)
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	slog.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

// initLLMClient builds the configured backend. ErrMissingAPIKey is logged
// once and leaves the service without a backend.
func (s *service) initLLMClient(ctx context.Context) error {
	if s.config.Backend != nil {
		s.llmClient = s.config.Backend
		slog.Info("Using injected LLM backend", "model", s.llmClient.Model())
		return nil
	}

	client, err := llm.NewClient(ctx, s.config.LLM)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		slog.Warn("LLM backend not configured, /chat will return 500",
			"backend", s.config.LLM.Backend,
			"error", err)
		return nil
	}
	if err != nil {
		return err
	}
	s.llmClient = client
	slog.Info("LLM backend initialized", "backend", s.config.LLM.Backend, "model", client.Model())
	return nil
}

// initRouter creates the gin engine, applies middleware and registers
// routes.
func (s *service) initRouter() error {
	secret := s.config.SessionSecret
	if len(secret) == 0 {
		generated, err := middleware.GenerateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}
		secret = generated
		slog.Warn("SECRET_KEY not set, using a random session secret; sessions reset on restart")
	}
	sessions, err := middleware.Sessions(middleware.SessionConfig{
		CookieName: s.config.CookieName,
		Secret:     secret,
		Secure:     s.config.SecureCookie,
	})
	if err != nil {
		return fmt.Errorf("failed to configure sessions: %w", err)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(ServiceName))

	routes.SetupRoutes(s.router, routes.Dependencies{
		Tutor: s.tutor,
		Handlers: handlers.HandlerConfig{
			ExposeBackendErrors: s.config.ExposeBackendErrors,
			Metrics:             s.metrics,
		},
		Sessions:  sessions,
		Gatherer:  s.registry,
		IndexHTML: web.IndexHTML(),
		Static:    web.Static(),
	})
	return nil
}

// cleanup closes the store and flushes the tracer. Subsequent calls are
// no-ops.
func (s *service) cleanup() error {
	s.closeOnce.Do(func() {
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				slog.Warn("history store close error", "error", err)
				s.closeErr = err
			}
		}
		if s.tracerCleanup != nil {
			s.tracerCleanup(context.Background())
		}
	})
	return s.closeErr
}
