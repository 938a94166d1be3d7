package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/GriffinCanCode/appletsync/internal/api/http"
	"github.com/GriffinCanCode/appletsync/internal/api/middleware"
	"github.com/GriffinCanCode/appletsync/internal/generator"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/config"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/appletsync/internal/store"
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	store    *store.Store
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
}

// Option customizes server construction
type Option func(*options)

type options struct {
	generator generator.Generator
	registry  *prometheus.Registry
	logger    *logging.Logger
}

// WithGenerator overrides the generator built from configuration
func WithGenerator(gen generator.Generator) Option {
	return func(o *options) { o.generator = gen }
}

// WithRegistry registers metrics on reg instead of a fresh registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger overrides the logger built from configuration
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing applet server",
		zap.String("port", cfg.Server.Port),
		zap.String("root", cfg.Store.Root),
	)

	registry := o.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := monitoring.NewMetrics(registry)

	st, err := store.New(cfg.Store.Root, logger.Component("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open applet store: %w", err)
	}

	gen := o.generator
	if gen == nil {
		if cfg.Generator.APIKey == "" {
			logger.Warn("No generator API key configured; uploads will fail")
		}
		genCfg := generator.DefaultConfig()
		genCfg.BaseURL = cfg.Generator.URL
		genCfg.APIKey = cfg.Generator.APIKey
		genCfg.ChatModel = cfg.Generator.ChatModel
		genCfg.TranscriptionModel = cfg.Generator.TranscriptionModel
		genCfg.Timeout = cfg.Generator.Timeout
		gen = generator.NewHTTP(genCfg, logger.Component("generator"))
	}

	tracer := tracing.New("appletsync", logger.Component("trace"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.AllowedOrigins
	}
	router.Use(middleware.CORS(cors))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}
	if cfg.Server.MaxUploadBytes > 0 {
		router.Use(middleware.BodyLimit(cfg.Server.MaxUploadBytes))
	}

	handlers.NewHandlers(st, gen, metrics, logger.Component("http")).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		http:     httpServer,
		store:    st,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
	}, nil
}

// Handler returns the routed handler, for embedding in test servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the applet store backing the server
func (s *Server) Store() *store.Store {
	return s.store
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down cleanly", zap.Error(err))
	}
	s.tracer.Close()
	_ = s.logger.Sync()
	return err
}
