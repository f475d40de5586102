// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the relying-party trust core over HTTP: device and
// authenticator management, ceremony simulation, token issuance, and JWKS.
package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/authenticator"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ceremony"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ratelimit"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/token"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the REST API server.
type Server struct {
	server    *http.Server
	handlers  *HandlerContext
	keys      *keys.Service
	tokens    *token.Service
	port      int
	tlsConfig *tls.Config
	auth      bool
	limiter   *ratelimit.Limiter
	metrics   bool
	logger    logger.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// Registry holds the virtual devices served by this instance.
	Registry *authenticator.Registry

	// Keys is the key lifecycle service.
	Keys *keys.Service

	// Tokens is the token service used for issuance and bearer validation.
	Tokens *token.Service

	// Ceremonies is the ceremony request cache.
	Ceremonies *ceremony.Cache

	// Version is the API version string.
	Version string

	// TLSConfig is the TLS configuration for HTTPS (optional).
	TLSConfig *tls.Config

	// AuthEnabled requires a bearer token on API routes.
	AuthEnabled bool

	// RateLimit configures per-client rate limiting (optional).
	RateLimit *ratelimit.Config

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool

	// Logger is the logging adapter (optional, defaults to slog).
	Logger logger.Logger

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("key service is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if cfg.Ceremonies == nil {
		return nil, fmt.Errorf("ceremony cache is required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level: logger.LevelInfo,
		})
	}

	handlers := NewHandlerContext(cfg.Registry, cfg.Keys, cfg.Tokens, cfg.Ceremonies, cfg.Version)

	server := &Server{
		handlers:  handlers,
		keys:      cfg.Keys,
		tokens:    cfg.Tokens,
		port:      cfg.Port,
		tlsConfig: cfg.TLSConfig,
		auth:      cfg.AuthEnabled,
		limiter:   ratelimit.New(cfg.RateLimit),
		metrics:   cfg.MetricsEnabled,
		logger:    log,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(ratelimit.Middleware(s.limiter))
	r.Use(CORSMiddleware)

	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Public discovery and issuance endpoints
	r.Get("/api/v1/jwks", s.handlers.JWKSHandler)
	r.Post("/api/v1/tokens", s.handlers.CreateTokenHandler)

	// API v1 routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		if s.auth {
			r.Use(s.AuthenticationMiddleware())
		}

		// Ceremony request endpoints
		r.Post("/ceremonies/registration", s.handlers.SaveRegistrationCeremonyHandler)
		r.Post("/ceremonies/assertion", s.handlers.SaveAssertionCeremonyHandler)
		r.Delete("/ceremonies/{requestID}", s.handlers.DeleteCeremonyHandler)

		// Device endpoints
		r.Post("/devices", s.handlers.CreateDeviceHandler)
		r.Get("/devices", s.handlers.ListDevicesHandler)
		r.Get("/devices/{deviceID}", s.handlers.GetDeviceHandler)
		r.Delete("/devices/{deviceID}", s.handlers.DeleteDeviceHandler)

		// Authenticator endpoints
		r.Post("/devices/{deviceID}/authenticators", s.handlers.AddAuthenticatorHandler)
		r.Get("/devices/{deviceID}/authenticators", s.handlers.ListAuthenticatorsHandler)

		// Ceremony simulation endpoints
		r.Post("/devices/{deviceID}/registration", s.handlers.RegistrationHandler)
		r.Post("/devices/{deviceID}/assertion", s.handlers.AssertionHandler)
	})

	return r
}

// Handler returns the configured router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting REST server", logger.Int("port", s.port))

	var err error
	if s.tlsConfig != nil {
		err = s.server.ListenAndServeTLS("", "")
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rest: server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping REST server")
	s.limiter.Stop()
	return s.server.Shutdown(ctx)
}
