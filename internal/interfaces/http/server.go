package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/infra/breakers"
	"github.com/sawpanic/optionsrun/internal/net/ratelimit"
	"github.com/sawpanic/optionsrun/internal/overlay"
	"github.com/sawpanic/optionsrun/internal/persistence"
)

// ReportCache stores serialized reports keyed by operation and input hash
type ReportCache interface {
	Get(ctx context.Context, kind, hash string, dst interface{}) (bool, error)
	Set(ctx context.Context, kind, hash string, report interface{}) error
	Delete(ctx context.Context, kind, hash string) error
	Ping(ctx context.Context) error
}

// Server exposes the decision engine over JSON/HTTP
type Server struct {
	router  *mux.Router
	server  *http.Server
	config  ServerConfig
	engine  overlay.Overlay
	limiter *ratelimit.Limiter
	metrics *MetricsRegistry

	cache          ReportCache
	cacheBreaker   *breakers.Breaker
	journal        persistence.JournalRepo
	journalHealth  persistence.RepositoryHealth
	journalBreaker *breakers.Breaker

	upgrader websocket.Upgrader
	now      func() time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	Version        string
	Breaker        breakers.Settings
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
		Version:        "dev",
	}
}

// Deps are the collaborators the server wires into its routes. Cache, Journal
// and Limiter are optional; a nil value disables that concern.
type Deps struct {
	Engine        overlay.Overlay
	Limiter       *ratelimit.Limiter
	Metrics       *MetricsRegistry
	Cache         ReportCache
	Journal       persistence.JournalRepo
	JournalHealth persistence.RepositoryHealth
}

// NewServer creates a new HTTP server instance
func NewServer(config ServerConfig, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetricsRegistry()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultServerConfig().RequestTimeout
	}

	breakerSettings := config.Breaker
	breakerSettings.OnStateChange = deps.Metrics.RecordBreakerState

	s := &Server{
		router:         mux.NewRouter(),
		config:         config,
		engine:         deps.Engine,
		limiter:        deps.Limiter,
		metrics:        deps.Metrics,
		cache:          deps.Cache,
		cacheBreaker:   breakers.New("report_cache", breakerSettings),
		journal:        deps.Journal,
		journalHealth:  deps.JournalHealth,
		journalBreaker: breakers.New("decision_journal", breakerSettings),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     localOrigin,
		},
		now: time.Now,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/ws/monitor", s.MonitorStream).Methods(http.MethodGet)

	engine := api.NewRoute().Subrouter()
	engine.Use(s.timeoutMiddleware)
	engine.Use(jsonContentTypeMiddleware)

	engine.HandleFunc("/market/analyze", s.AnalyzeMarket).Methods(http.MethodPost)
	engine.HandleFunc("/strategies", s.Strategies).Methods(http.MethodPost)
	engine.HandleFunc("/trades/monitor", s.MonitorTrade).Methods(http.MethodPost)
	engine.HandleFunc("/trades/autopsy", s.Autopsy).Methods(http.MethodPost)
	engine.HandleFunc("/analysis", s.Analysis).Methods(http.MethodPost)

	journal := api.PathPrefix("/journal").Subrouter()
	journal.Use(s.timeoutMiddleware)
	journal.Use(jsonContentTypeMiddleware)

	journal.HandleFunc("", s.ListJournal).Methods(http.MethodGet)
	journal.HandleFunc("/outcomes", s.JournalOutcomes).Methods(http.MethodGet)
	journal.HandleFunc("/{id}", s.GetJournalEntry).Methods(http.MethodGet)

	s.router.NotFoundHandler = s.requestIDMiddleware(http.HandlerFunc(s.NotFound))
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Str("version", s.config.Version).Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the server address
func (s *Server) GetAddress() string {
	return s.config.Addr
}
