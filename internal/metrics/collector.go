package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the simulator's Prometheus metrics: request/hit/miss
// counters, occupied-bytes gauge, eviction counter, and reader bytes-read
// counter.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	requestCounter  *prometheus.CounterVec
	occupiedGauge   prometheus.Gauge
	evictionCounter *prometheus.CounterVec
	readerBytes     prometheus.Counter

	lastReset time.Time
	server    *http.Server
}

// Config controls metrics collection and the exposed HTTP endpoint.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// NewCollector builds a Collector and registers its metrics. Passing a nil
// config yields sensible defaults under the "cachesim" namespace.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "cachesim",
			Labels:    make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		config:    config,
		registry:  registry,
		lastReset: time.Now(),
	}

	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

// Start starts the /metrics HTTP server in the background. A no-op if
// metrics are disabled.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts down the metrics HTTP server, if running.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// Registry exposes the underlying Prometheus registry, for internal/obsserver
// to mount behind its own /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordHit records a cache hit at the given cache level (e.g. a level name
// in a multi-level driver, or "default" for a single-level cache).
func (c *Collector) RecordHit(level string) {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.With(prometheus.Labels{"level": level, "result": "hit"}).Inc()
}

// RecordMiss records a cache miss at the given cache level.
func (c *Collector) RecordMiss(level string) {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.With(prometheus.Labels{"level": level, "result": "miss"}).Inc()
}

// SetOccupiedBytes sets the current cache occupied-bytes gauge.
func (c *Collector) SetOccupiedBytes(bytes int64) {
	if !c.config.Enabled {
		return
	}
	c.occupiedGauge.Set(float64(bytes))
}

// RecordEviction records an eviction, labeled by the reason the policy gave
// ("capacity" for a normal capacity-triggered eviction, "expired" for a TTL
// eviction if the cache shell supports one).
func (c *Collector) RecordEviction(reason string) {
	if !c.config.Enabled {
		return
	}
	c.evictionCounter.With(prometheus.Labels{"reason": reason}).Inc()
}

// AddReaderBytes accumulates bytes read from the trace source (local file or
// downloaded S3 object).
func (c *Collector) AddReaderBytes(n int64) {
	if !c.config.Enabled || n <= 0 {
		return
	}
	c.readerBytes.Add(float64(n))
}

func (c *Collector) initMetrics() {
	c.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "requests_total",
			Help:      "Total number of cache requests by level and result (hit/miss)",
		},
		[]string{"level", "result"},
	)

	c.occupiedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "occupied_bytes",
			Help:      "Current bytes occupied in the cache",
		},
	)

	c.evictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "evictions_total",
			Help:      "Total number of evictions by reason",
		},
		[]string{"reason"},
	)

	c.readerBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "reader_bytes_total",
			Help:      "Total bytes read from the trace source",
		},
	)
}

func (c *Collector) registerMetrics() error {
	collectors := []prometheus.Collector{
		c.requestCounter,
		c.occupiedGauge,
		c.evictionCounter,
		c.readerBytes,
	}

	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}
