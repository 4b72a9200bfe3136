// Package httpapi exposes the engine over HTTP: time control, account
// and market read views, trade submission, crash triggers, and a
// WebSocket tick stream. Every handler is a thin adapter onto
// internal/engine's already-locked entry points — no business logic
// lives here.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketsim/internal/engine"
)

// Server is the read-write HTTP front end for one engine instance.
type Server struct {
	router  *mux.Router
	server  *http.Server
	eng     *engine.Engine
	metrics *MetricsRegistry
	cfg     Config
	hub     *tickHub
	limiter *ipLimiter
}

// Config bundles server construction settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// DefaultConfig matches the engine's own config.Default() server section.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  8 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// New constructs a Server bound to eng, with routes and middleware wired.
func New(eng *engine.Engine, cfg Config) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		eng:     eng,
		metrics: NewMetricsRegistry(),
		cfg:     cfg,
		hub:     newTickHub(),
		limiter: newIPLimiter(5, 10),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api.HandleFunc("/api/time", s.handleTime).Methods(http.MethodGet)
	api.HandleFunc("/api/time/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/api/time/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/api/time/speed", s.handleSetSpeed).Methods(http.MethodPost)

	api.HandleFunc("/api/stocks", s.handleStocks).Methods(http.MethodGet)
	api.HandleFunc("/api/stocks/{symbol}", s.handleStock).Methods(http.MethodGet)
	api.HandleFunc("/api/stocks/{symbol}/history", s.handleStockHistory).Methods(http.MethodGet)

	api.HandleFunc("/api/market/index", s.handleMarketIndex).Methods(http.MethodGet)

	api.HandleFunc("/api/indexfunds", s.handleIndexFunds).Methods(http.MethodGet)
	api.HandleFunc("/api/indexfunds/{symbol}", s.handleIndexFund).Methods(http.MethodGet)
	api.HandleFunc("/api/indexfunds/{symbol}/history", s.handleStockHistory).Methods(http.MethodGet)

	api.HandleFunc("/api/companies/{symbol}", s.handleCompany).Methods(http.MethodGet)
	api.HandleFunc("/api/news", s.handleNews).Methods(http.MethodGet)
	api.HandleFunc("/api/emails", s.handleEmails).Methods(http.MethodGet)

	api.HandleFunc("/api/account", s.handleAccount).Methods(http.MethodGet)
	api.HandleFunc("/api/trade", rateLimitMiddleware(s.limiter, s.handleTrade)).Methods(http.MethodPost)
	api.HandleFunc("/api/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)

	api.HandleFunc("/api/crash", s.handleListCrashes).Methods(http.MethodGet)
	api.HandleFunc("/api/crash/trigger", s.handleTriggerCrash).Methods(http.MethodPost)
	api.HandleFunc("/api/crash/deactivate/{id}", s.handleDeactivateCrash).Methods(http.MethodPost)

	api.HandleFunc("/api/retention/prune", s.handleRetentionPrune).Methods(http.MethodPost)

	s.router.HandleFunc("/ws/ticks", s.handleTickStream)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Start runs the tick-broadcast loop and the HTTP listener, blocking
// until the listener stops.
func (s *Server) Start() error {
	go s.hub.run()
	log.Info().Str("addr", s.cfg.Addr).Msg("httpapi: listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	s.hub.close()
	return s.server.Shutdown(shutdownCtx)
}

// BroadcastTick pushes the tick instant now to every connected
// WebSocket client; callers (typically internal/scheduler's tick job)
// call this right after Engine.Tick succeeds.
func (s *Server) BroadcastTick(now time.Time) {
	s.hub.broadcast(tickMessage{Instant: now})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (w *statusCapture) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.metrics.RequestDuration.WithLabelValues(r.URL.Path, fmt.Sprint(wrapped.status)).Observe(time.Since(start).Seconds())
		log.Debug().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("httpapi: request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}
