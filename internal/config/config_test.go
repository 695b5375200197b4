package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefault(t *testing.T) {
	t.Parallel()

	cfg := NewDefault()

	if cfg.Cache.Capacity != "1GB" {
		t.Errorf("Capacity = %q, want 1GB", cfg.Cache.Capacity)
	}
	if cfg.Cache.Policy != "lru" {
		t.Errorf("Policy = %q, want lru", cfg.Cache.Policy)
	}
	if cfg.Cache.DeltaWindowSize != 20 {
		t.Errorf("DeltaWindowSize = %d, want 20", cfg.Cache.DeltaWindowSize)
	}
	if cfg.Cache.HistorySize != 100 {
		t.Errorf("HistorySize = %d, want 100", cfg.Cache.HistorySize)
	}
	if cfg.Cache.CandidateWindow != 100 {
		t.Errorf("CandidateWindow = %d, want 100", cfg.Cache.CandidateWindow)
	}
	if cfg.Trace.Delimiter != "," {
		t.Errorf("Delimiter = %q, want ,", cfg.Trace.Delimiter)
	}
	if cfg.Driver.ReportIntervalSecond != 3600 {
		t.Errorf("ReportIntervalSecond = %v, want 3600", cfg.Driver.ReportIntervalSecond)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "cachesim.yaml")
	contents := `
trace:
  path: /traces/sample.oracleGeneral
  format: oracle-general
cache:
  capacity: 4GB
  policy: lfu
driver:
  warmup_seconds: 120
`
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile error: %v", err)
	}

	if cfg.Trace.Path != "/traces/sample.oracleGeneral" {
		t.Errorf("Trace.Path = %q, want /traces/sample.oracleGeneral", cfg.Trace.Path)
	}
	if cfg.Cache.Capacity != "4GB" {
		t.Errorf("Cache.Capacity = %q, want 4GB", cfg.Cache.Capacity)
	}
	if cfg.Cache.Policy != "lfu" {
		t.Errorf("Cache.Policy = %q, want lfu", cfg.Cache.Policy)
	}
	if cfg.Driver.WarmupSeconds != 120 {
		t.Errorf("Driver.WarmupSeconds = %v, want 120", cfg.Driver.WarmupSeconds)
	}
	// Untouched fields keep their post-default values.
	if cfg.Cache.DeltaWindowSize != 20 {
		t.Errorf("DeltaWindowSize = %d, want 20 (unset by file)", cfg.Cache.DeltaWindowSize)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/path.yaml"); err == nil {
		t.Error("expected error loading a missing config file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("cache: [this is not a map"), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err == nil {
		t.Error("expected error loading malformed YAML")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CACHESIM_TRACE_PATH", "/env/trace.csv")
	t.Setenv("CACHESIM_CACHE_POLICY", "scaffolded")
	t.Setenv("CACHESIM_METRICS_PORT", "9999")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Trace.Path != "/env/trace.csv" {
		t.Errorf("Trace.Path = %q, want /env/trace.csv", cfg.Trace.Path)
	}
	if cfg.Cache.Policy != "scaffolded" {
		t.Errorf("Cache.Policy = %q, want scaffolded", cfg.Cache.Policy)
	}
	if cfg.Metrics.Port != 9999 {
		t.Errorf("Metrics.Port = %d, want 9999", cfg.Metrics.Port)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cachesim.yaml")

	cfg := NewDefault()
	cfg.Trace.Path = "/traces/a.csv"
	cfg.Cache.Capacity = "8GB"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile error: %v", err)
	}

	loaded := &Configuration{}
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile error: %v", err)
	}
	if loaded.Trace.Path != cfg.Trace.Path {
		t.Errorf("Trace.Path = %q, want %q", loaded.Trace.Path, cfg.Trace.Path)
	}
	if loaded.Cache.Capacity != cfg.Cache.Capacity {
		t.Errorf("Cache.Capacity = %q, want %q", loaded.Cache.Capacity, cfg.Cache.Capacity)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Configuration {
		c := NewDefault()
		c.Trace.Path = "/traces/a.csv"
		return c
	}

	t.Run("valid config passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("missing trace path", func(t *testing.T) {
		c := valid()
		c.Trace.Path = ""
		if err := c.Validate(); err == nil {
			t.Error("expected error for missing trace path")
		}
	})

	t.Run("invalid capacity", func(t *testing.T) {
		c := valid()
		c.Cache.Capacity = "not-a-size"
		if err := c.Validate(); err == nil {
			t.Error("expected error for invalid capacity")
		}
	})

	t.Run("invalid policy", func(t *testing.T) {
		c := valid()
		c.Cache.Policy = "bogus"
		if err := c.Validate(); err == nil {
			t.Error("expected error for invalid policy")
		}
	})

	t.Run("invalid admission name", func(t *testing.T) {
		c := valid()
		c.Admission.Name = "bogus"
		if err := c.Validate(); err == nil {
			t.Error("expected error for invalid admission name")
		}
	})

	t.Run("sampler ratio out of range", func(t *testing.T) {
		c := valid()
		c.Trace.SamplerRatio = 1.5
		if err := c.Validate(); err == nil {
			t.Error("expected error for out-of-range sampler ratio")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		c := valid()
		c.Logging.Level = "VERBOSE"
		if err := c.Validate(); err == nil {
			t.Error("expected error for invalid log level")
		}
	})
}

func TestParseReaderParamString(t *testing.T) {
	t.Parallel()

	base := TraceConfig{}
	cfg, err := ParseReaderParamString(base, "time-col=1,obj-id-col=2,obj-size-col=3,has-header=true,delimiter=\\t")
	if err != nil {
		t.Fatalf("ParseReaderParamString error: %v", err)
	}

	if cfg.TimeCol != 1 || cfg.ObjIDCol != 2 || cfg.ObjSizeCol != 3 {
		t.Errorf("column indices = %+v, want time=1 obj_id=2 obj_size=3", cfg)
	}
	if !cfg.HasHeader {
		t.Error("HasHeader = false, want true")
	}
	if cfg.Delimiter != "\t" {
		t.Errorf("Delimiter = %q, want tab", cfg.Delimiter)
	}
}

func TestParseReaderParamString_FeatureCols(t *testing.T) {
	t.Parallel()

	cfg, err := ParseReaderParamString(TraceConfig{}, "feature-cols=4|5|6")
	if err != nil {
		t.Fatalf("ParseReaderParamString error: %v", err)
	}
	want := []int{4, 5, 6}
	if len(cfg.FeatureCols) != len(want) {
		t.Fatalf("FeatureCols = %v, want %v", cfg.FeatureCols, want)
	}
	for i, v := range want {
		if cfg.FeatureCols[i] != v {
			t.Errorf("FeatureCols[%d] = %d, want %d", i, cfg.FeatureCols[i], v)
		}
	}
}

func TestParseReaderParamString_UnknownKey(t *testing.T) {
	t.Parallel()

	if _, err := ParseReaderParamString(TraceConfig{}, "bogus-key=1"); err == nil {
		t.Error("expected error for unrecognized reader parameter")
	}
}

func TestParseReaderParamString_MalformedPair(t *testing.T) {
	t.Parallel()

	if _, err := ParseReaderParamString(TraceConfig{}, "time-col"); err == nil {
		t.Error("expected error for malformed key=value pair")
	}
}

func TestParseReaderParamString_InvalidBool(t *testing.T) {
	t.Parallel()

	if _, err := ParseReaderParamString(TraceConfig{}, "obj-id-is-num=maybe"); err == nil {
		t.Error("expected error for invalid boolean value")
	}
}
