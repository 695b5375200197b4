// Package config loads the simulator's configuration: trace reader
// parameters, cache settings, admission settings, driver settings, and the
// ambient metrics/health/logging settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/cachesim/cachesim/internal/logging"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// Configuration is the complete simulator configuration.
type Configuration struct {
	Trace     TraceConfig     `yaml:"trace"`
	Cache     CacheConfig     `yaml:"cache"`
	Admission AdmissionConfig `yaml:"admission"`
	Driver    DriverConfig    `yaml:"driver"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Health    HealthConfig    `yaml:"health"`
}

// TraceConfig configures the trace reader: path, layout, and the
// key=value reader params from spec §6 (kept structured here rather than
// as a raw string, so config files express them as ordinary YAML fields;
// ParseReaderParamString below parses the wire-format string variant
// accepted by the CLI surface).
type TraceConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "csv", "txt", "binary", "vscsi", "twitter", "twitter-ns", "oracle-general", "oracle-sys-twrns", "valpin", "lcs"

	TimeCol      int    `yaml:"time_col"`
	ObjIDCol     int    `yaml:"obj_id_col"`
	ObjSizeCol   int    `yaml:"obj_size_col"`
	CountCol     int    `yaml:"cnt_col"`
	OpCol        int    `yaml:"op_col"`
	TenantCol    int    `yaml:"tenant_col"`
	TTLCol       int    `yaml:"ttl_col"`
	FeatureCols  []int  `yaml:"feature_cols"`
	ObjIDIsNum   bool   `yaml:"obj_id_is_num"`
	BlockSize    int    `yaml:"block_size"` // scales decoded obj_size when translating a block-address trace's byte range (internal/trace.Reader.applyFilters)
	HasHeader    bool   `yaml:"has_header"`
	Delimiter    string `yaml:"delimiter"`
	BinaryFormat string `yaml:"binary_format_str"`

	IgnoreObjSize          bool    `yaml:"ignore_obj_size"`
	IgnoreSizeZeroRequests bool    `yaml:"ignore_size_zero_requests"`
	CapAtNReq              int64   `yaml:"cap_at_n_req"`
	TraceStartOffset       int64   `yaml:"trace_start_offset"`
	SamplerRatio           float64 `yaml:"sampler_ratio"`
}

// CacheConfig configures the cache shell and eviction policy.
type CacheConfig struct {
	Capacity              string `yaml:"capacity"` // KMGTPE notation, e.g. "2GB", or a bare object count
	Policy                string `yaml:"policy"`   // "lru", "lfu", "scaffolded"
	PerObjectMetadataSize int    `yaml:"per_object_metadata_size"`
	ConsiderObjMetadata   bool   `yaml:"consider_obj_metadata"`

	// Scaffolded-policy parameters (§4.H). Zero values are replaced with
	// spec defaults by applyDefaults.
	DeltaWindowSize    int    `yaml:"delta_window_size"`    // K, default 20
	HistorySize        int    `yaml:"history_size"`         // H, default 100
	CandidateWindow    int    `yaml:"candidate_window"`     // default 100
	DecisionFunction   string `yaml:"decision_function"`    // "lru", "fifo", "lfu" (default when no external decision function is supplied)
}

// AdmissionConfig configures the optional pre-insert admission gate. Only
// the name is interpreted here; each variant's internal parameters are out
// of scope (spec §4.J) and passed through verbatim.
type AdmissionConfig struct {
	Name   string            `yaml:"name"` // "", "bloom-filter", "prob", "size", "size-prob", "adaptsize"
	Params map[string]string `yaml:"params"`
}

// DriverConfig configures the simulation driver.
type DriverConfig struct {
	WarmupSeconds        float64 `yaml:"warmup_seconds"`
	ReportIntervalSecond float64 `yaml:"report_interval_seconds"`
	OutputPath           string  `yaml:"output_path"`
	DebugChecks          bool    `yaml:"debug_checks"`
}

// MetricsConfig mirrors internal/metrics.Config; kept as its own struct so
// YAML config files don't need to know about the metrics package layout.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// HealthConfig configures internal/health and internal/obsserver.
type HealthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CheckInterval   time.Duration `yaml:"check_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	ObsServerAddr   string        `yaml:"obsserver_addr"`
	ObsServerCORS   bool          `yaml:"obsserver_cors"`
}

// NewDefault returns a configuration with spec-mandated defaults applied.
func NewDefault() *Configuration {
	c := &Configuration{}
	c.applyDefaults()
	return c
}

func (c *Configuration) applyDefaults() {
	if c.Cache.Capacity == "" {
		c.Cache.Capacity = "1GB"
	}
	if c.Cache.Policy == "" {
		c.Cache.Policy = "lru"
	}
	if c.Cache.DeltaWindowSize == 0 {
		c.Cache.DeltaWindowSize = 20
	}
	if c.Cache.HistorySize == 0 {
		c.Cache.HistorySize = 100
	}
	if c.Cache.CandidateWindow == 0 {
		c.Cache.CandidateWindow = 100
	}
	if c.Cache.DecisionFunction == "" {
		c.Cache.DecisionFunction = "lru"
	}
	if c.Trace.Delimiter == "" {
		c.Trace.Delimiter = ","
	}
	if c.Driver.ReportIntervalSecond == 0 {
		c.Driver.ReportIntervalSecond = 3600
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "cachesim"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = 30 * time.Second
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = 5 * time.Second
	}
	if c.Health.ObsServerAddr == "" {
		c.Health.ObsServerAddr = "localhost:8080"
	}
}

// LoadFromFile loads configuration from a YAML file, then applies defaults
// to any field the file left zero-valued.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to read config file").
			WithComponent("config").WithOperation("LoadFromFile").WithCause(err).
			WithDetail("path", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "failed to parse config file").
			WithComponent("config").WithOperation("LoadFromFile").WithCause(err).
			WithDetail("path", filename)
	}

	c.applyDefaults()
	return nil
}

// LoadFromEnv overrides configuration from CACHESIM_* environment
// variables, mirroring the teacher's environment-override convention.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("CACHESIM_TRACE_PATH"); val != "" {
		c.Trace.Path = val
	}
	if val := os.Getenv("CACHESIM_TRACE_FORMAT"); val != "" {
		c.Trace.Format = val
	}
	if val := os.Getenv("CACHESIM_CACHE_CAPACITY"); val != "" {
		c.Cache.Capacity = val
	}
	if val := os.Getenv("CACHESIM_CACHE_POLICY"); val != "" {
		c.Cache.Policy = val
	}
	if val := os.Getenv("CACHESIM_WARMUP_SECONDS"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Driver.WarmupSeconds = f
		}
	}
	if val := os.Getenv("CACHESIM_OUTPUT_PATH"); val != "" {
		c.Driver.OutputPath = val
	}
	if val := os.Getenv("CACHESIM_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("CACHESIM_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validPolicies = map[string]bool{"lru": true, "lfu": true, "scaffolded": true}

var validAdmission = map[string]bool{
	"": true, "bloom-filter": true, "prob": true, "probabilistic": true,
	"size": true, "size-prob": true, "adaptsize": true,
}

// Validate checks the configuration for the kinds of mistakes the driver
// must refuse to start with: invalid policy/admission names, unparseable
// capacities, and an invalid log level. All failures are ConfigInvalid and
// fatal (spec §7).
func (c *Configuration) Validate() error {
	if c.Trace.Path == "" {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "trace.path is required").WithComponent("config")
	}

	if _, err := logging.ParseBytes(c.Cache.Capacity); err != nil {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid cache.capacity").
			WithComponent("config").WithCause(err).WithDetail("capacity", c.Cache.Capacity)
	}

	if !validPolicies[strings.ToLower(c.Cache.Policy)] {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid cache.policy").
			WithComponent("config").WithDetail("policy", c.Cache.Policy)
	}

	if !validAdmission[strings.ToLower(c.Admission.Name)] {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid admission.name").
			WithComponent("config").WithDetail("name", c.Admission.Name)
	}

	if c.Trace.SamplerRatio < 0 || c.Trace.SamplerRatio > 1 {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "trace.sampler_ratio must be in [0,1]").
			WithComponent("config").WithDetail("sampler_ratio", c.Trace.SamplerRatio)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid logging.level").
			WithComponent("config").WithCause(err).WithDetail("level", c.Logging.Level)
	}

	return nil
}

// ParseReaderParamString parses the CLI-surface config grammar from spec §6:
// a comma-separated key=value list, with '_'/'-' interchangeable in keys,
// layered onto a copy of the trace config's current values. Any
// unrecognized key is a ConfigInvalid error, never silently ignored.
func ParseReaderParamString(base TraceConfig, s string) (TraceConfig, error) {
	cfg := base

	if s == "" {
		return cfg, nil
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return cfg, simerr.NewError(simerr.ErrCodeConfigInvalid, "malformed key=value pair").
				WithComponent("config").WithDetail("pair", pair)
		}

		key := normalizeKey(kv[0])
		value := kv[1]

		var err error
		switch key {
		case "time_col":
			cfg.TimeCol, err = parseIntKey(value)
		case "obj_id_col":
			cfg.ObjIDCol, err = parseIntKey(value)
		case "obj_size_col", "size_col":
			cfg.ObjSizeCol, err = parseIntKey(value)
		case "cnt_col":
			cfg.CountCol, err = parseIntKey(value)
		case "op_col":
			cfg.OpCol, err = parseIntKey(value)
		case "tenant_col":
			cfg.TenantCol, err = parseIntKey(value)
		case "ttl_col":
			cfg.TTLCol, err = parseIntKey(value)
		case "feature_cols":
			cfg.FeatureCols, err = parseFeatureCols(value)
		case "obj_id_is_num":
			cfg.ObjIDIsNum, err = parseBoolKey(value)
		case "block_size":
			cfg.BlockSize, err = parseIntKey(value)
		case "header", "has_header":
			cfg.HasHeader, err = parseBoolKey(value)
		case "format":
			cfg.BinaryFormat = value
		case "delimiter":
			cfg.Delimiter = parseDelimiter(value)
		default:
			return cfg, simerr.NewError(simerr.ErrCodeConfigInvalid, "unrecognized reader parameter").
				WithComponent("config").WithDetail("key", kv[0])
		}

		if err != nil {
			return cfg, simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid value for reader parameter").
				WithComponent("config").WithCause(err).WithDetail("key", kv[0]).WithDetail("value", value)
		}
	}

	return cfg, nil
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

func parseIntKey(value string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(value))
}

func parseBoolKey(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1", "y":
		return true, nil
	case "false", "no", "0", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %q", value)
	}
}

func parseFeatureCols(value string) ([]int, error) {
	parts := strings.Split(value, "|")
	cols := make([]int, 0, len(parts))
	for _, p := range parts {
		col, err := parseIntKey(p)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func parseDelimiter(value string) string {
	switch value {
	case "\\t":
		return "\t"
	case "\\,", "":
		return ","
	default:
		return value
	}
}
