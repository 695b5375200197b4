// Package obsserver exposes the running simulation over HTTP: Prometheus
// metrics for scraping and a health status endpoint for long-running driver
// processes (e.g. a sweep over many traces) that want to be probed
// externally rather than watched on stdout.
package obsserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cachesim/cachesim/internal/health"
	"github.com/cachesim/cachesim/internal/metrics"
)

// Server serves /healthz and /metrics for a running simulation.
type Server struct {
	httpServer *http.Server
	checker    *health.Checker
	collector  *metrics.Collector
	config     Config
}

// Config configures the observability server.
type Config struct {
	Address       string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Address:       "localhost:8080",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
		IdleTimeout:   60 * time.Second,
		EnableCORS:    true,
		EnableMetrics: true,
	}
}

// NewServer wires /healthz against checker and /metrics against collector's
// Prometheus registry. Either dependency may be nil: with a nil checker
// /healthz reports that invariant checking is not configured; with a nil
// collector (or EnableMetrics off) /metrics is not mounted at all.
func NewServer(config Config, checker *health.Checker, collector *metrics.Collector) *Server {
	s := &Server{
		checker:   checker,
		collector: collector,
		config:    config,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/healthz/live", s.handleLiveness)
	mux.HandleFunc("/info", s.handleInfo)

	if config.EnableMetrics && collector != nil && collector.Registry() != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	handler := s.loggingMiddleware(mux)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	log.Printf("obsserver: listening on %s", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine.
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("obsserver: server error: %v", err)
		}
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.checker == nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"note":   "invariant checking not configured",
		})
		return
	}

	status := s.checker.GetStatus()
	code := http.StatusOK
	if !s.checker.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, status)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	endpoints := []string{"/healthz", "/healthz/live", "/info"}
	if s.config.EnableMetrics {
		endpoints = append(endpoints, "/metrics")
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "cachesim",
		"timestamp": time.Now(),
		"endpoints": endpoints,
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("obsserver: %s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("obsserver: error encoding JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}
