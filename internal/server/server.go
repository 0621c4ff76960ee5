package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"batchloader/internal/backend"
	"batchloader/internal/batcher"
	"batchloader/internal/config"
	"batchloader/internal/metrics"
	"batchloader/internal/resolver"
	"batchloader/internal/ws"
)

// Server represents the main server
type Server struct {
	cfg       *config.Config
	router    *resolver.Router
	resolver  *resolver.Resolver
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	rpcServer *http.Server
	wsServer  *http.Server
	logger    zerolog.Logger
}

// New creates a new Server
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Batching.Enabled {
		logger.Info().
			Int("window", cfg.Batching.Window).
			Int("maxBatchSize", cfg.Batching.MaxBatchSize).
			Int("fetchTimeout", cfg.Batching.FetchTimeout).
			Msg("batching enabled")
	} else {
		logger.Info().Msg("batching disabled, every lookup is fetched on its own")
	}

	if cfg.IsCacheEnabled() {
		logger.Info().
			Str("driver", cfg.Cache.Driver).
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("cache enabled")
	} else {
		logger.Info().Msg("cache disabled")
	}

	return &Server{
		cfg:      cfg,
		router:   resolver.NewRouter(),
		resolver: resolver.New(logger),
		registry: registry,
		metrics:  metrics.New(registry),
		logger:   logger,
	}, nil
}

// AddDatasource connects a datasource and registers it with the router
func (s *Server) AddDatasource(ctx context.Context, dsCfg config.DatasourceConfig) error {
	reg, err := buildRegistry(dsCfg.Entities)
	if err != nil {
		return fmt.Errorf("datasource '%s': %w", dsCfg.Name, err)
	}

	store, err := openStore(ctx, dsCfg)
	if err != nil {
		return fmt.Errorf("datasource '%s': %w", dsCfg.Name, err)
	}

	var b backend.Backend = backend.New(store, reg)
	if s.cfg.IsCircuitBreakerEnabled() {
		b = backend.NewBreaker(b, backend.BreakerConfig{
			FailureThreshold:    s.cfg.CircuitBreaker.FailureThreshold,
			RecoveryTimeout:     s.cfg.CircuitBreaker.GetRecoveryTimeoutDuration(),
			HalfOpenMaxRequests: s.cfg.CircuitBreaker.HalfOpenMaxRequests,
		})
	}
	if s.cfg.IsCacheEnabled() {
		c, err := newCache(s.cfg, dsCfg.Name, s.logger)
		if err != nil {
			store.Close()
			return fmt.Errorf("datasource '%s': failed to create cache: %w", dsCfg.Name, err)
		}
		b = backend.NewCached(b, c, s.metrics)
	}

	collector := batcher.NewCollector(dsCfg.Name, s.cfg.Batching, b, reg, s.logger)
	collector.SetMetrics(s.metrics)

	s.router.AddDatasource(&resolver.Datasource{
		Name:      dsCfg.Name,
		Registry:  reg,
		Backend:   b,
		Collector: collector,
	})

	s.logger.Info().
		Str("datasource", dsCfg.Name).
		Str("driver", dsCfg.Driver).
		Strs("models", reg.Names()).
		Msg("added datasource")
	return nil
}

// Handler returns the HTTP handler of the RPC port
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", resolver.NewHandler(s.router, s.resolver, s.cfg, s.logger))
	return mux
}

// Start starts the server
func (s *Server) Start() error {
	wsHandler := ws.NewHandler(s.router, s.resolver, s.cfg, s.logger)

	rpcAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.RPCPort)
	wsAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.WSPort)

	// Start RPC server
	s.rpcServer = &http.Server{
		Addr:         rpcAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", rpcAddr).
			Msg("starting RPC server")
		if err := s.rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	// Start WebSocket server
	s.wsServer = &http.Server{
		Addr:         wsAddr,
		Handler:      wsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("addr", wsAddr).
			Msg("starting WebSocket server")
		if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("WebSocket server error")
		}
	}()

	// Log available endpoints
	for _, name := range s.router.Names() {
		s.logger.Info().
			Str("datasource", name).
			Str("rpc", fmt.Sprintf("http://%s/%s", rpcAddr, name)).
			Str("ws", fmt.Sprintf("ws://%s/%s", wsAddr, name)).
			Msg("endpoint available")
	}
	s.logger.Info().
		Str("metrics", fmt.Sprintf("http://%s/metrics", rpcAddr)).
		Msg("metrics available")

	return nil
}

// Stop gracefully stops the server. Pending lookups are flushed before
// backends are closed.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var result *multierror.Error

	if s.rpcServer != nil {
		if err := s.rpcServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("RPC server shutdown error: %w", err))
		}
	}
	if s.wsServer != nil {
		if err := s.wsServer.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("WebSocket server shutdown error: %w", err))
		}
	}

	if err := s.router.CloseAll(ctx); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

// GetRouter returns the router
func (s *Server) GetRouter() *resolver.Router {
	return s.router
}
