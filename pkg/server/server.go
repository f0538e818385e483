package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"lexhq/coinmeter/pkg/billing"
	"lexhq/coinmeter/pkg/config"
	"lexhq/coinmeter/pkg/ledger"
	"lexhq/coinmeter/pkg/session"
	"lexhq/coinmeter/pkg/telemetry/metrics"
)

// Server is the HTTP API server for the metering service.
type Server struct {
	config       config.ServerConfig
	metricsCfg   config.MetricsConfig
	httpServer   *http.Server
	handlers     *handlers
	collector    *metrics.Collector
	logger       *slog.Logger
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Deps wires the server's collaborators.
type Deps struct {
	Billing  *billing.Tracker
	Sessions *session.Tracker
	Wallets  ledger.Service

	// Collector is optional; when set and metrics are enabled in the
	// config, the scrape endpoint is registered.
	Collector *metrics.Collector

	Logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Billing == nil || deps.Sessions == nil || deps.Wallets == nil {
		return nil, fmt.Errorf("billing, sessions and wallets are all required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:     cfg.Server,
		metricsCfg: cfg.Telemetry.Metrics,
		handlers: &handlers{
			billing:      deps.Billing,
			sessions:     deps.Sessions,
			wallets:      deps.Wallets,
			sessionTTL:   cfg.Sessions.TTL,
			exchangeRate: cfg.Billing.ExchangeRate,
		},
		collector:    deps.Collector,
		logger:       logger.With("component", "server"),
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("API server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", s.handlers.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handlers.getSession)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handlers.cancelSession)
	mux.HandleFunc("GET /v1/sessions/{id}/summary", s.handlers.sessionSummary)
	mux.HandleFunc("GET /v1/sessions/{id}/estimate", s.handlers.estimateNextCost)
	mux.HandleFunc("POST /v1/sessions/{id}/tokens", s.handlers.addTokenUsage)

	mux.HandleFunc("POST /v1/billing/charge", s.handlers.charge)
	mux.HandleFunc("POST /v1/billing/precheck", s.handlers.preCharge)
	mux.HandleFunc("POST /v1/billing/preview", s.handlers.preview)
	mux.HandleFunc("GET /v1/billing/step-options", s.handlers.stepOptions)

	mux.HandleFunc("GET /v1/wallets/{user}", s.handlers.getWallet)
	mux.HandleFunc("POST /v1/wallets/{user}/deposit", s.handlers.deposit)
	mux.HandleFunc("POST /v1/wallets/{user}/withdraw", s.handlers.withdraw)
	mux.HandleFunc("POST /v1/wallets/{user}/purchase", s.handlers.purchaseCoins)
	mux.HandleFunc("GET /v1/wallets/{user}/transactions", s.handlers.transactions)

	mux.HandleFunc("GET /healthz", s.handlers.health)

	if s.metricsCfg.Enabled && s.collector != nil {
		mux.Handle("GET "+s.metricsCfg.Path, s.collector.Handler())
	}

	var handler http.Handler = mux
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)

	return handler
}
