// Command cachesim replays a trace file through a simulated cache and
// reports its miss ratio, per spec §4.I/§6. Configuration is loaded from an
// optional YAML file, then a handful of CLI flags override the fields the
// external CLI surface names directly (spec §6): trace path/type, cache
// capacity/algorithm, warmup seconds, report interval, sampler ratio,
// ignore_obj_size, and output path. No flag/CLI library appears anywhere in
// the retrieval pack, so this uses the standard library's flag package
// rather than introducing one (see DESIGN.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cachesim/cachesim/internal/config"
	"github.com/cachesim/cachesim/internal/driver"
	"github.com/cachesim/cachesim/internal/health"
	"github.com/cachesim/cachesim/internal/logging"
	"github.com/cachesim/cachesim/internal/metrics"
	"github.com/cachesim/cachesim/internal/obsserver"
	s3source "github.com/cachesim/cachesim/internal/tracesource/s3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cachesim: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", "", "path to a YAML configuration file")
		tracePath    = flag.String("trace", "", "trace file path, or s3://bucket/key")
		traceFormat  = flag.String("trace-type", "", "trace format (csv, txt, binary, vscsi, twitter, twitter-ns, oracle-general, oracle-sys-twrns, valpin, lcs)")
		readerParams = flag.String("reader-params", "", "comma-separated key=value reader parameters, per spec §6's config grammar")
		capacity     = flag.String("cache-size", "", "cache capacity, e.g. 1GB or a bare object count")
		policy       = flag.String("algo", "", "cache eviction algorithm (lru, lfu, scaffolded)")
		admissionN   = flag.String("admission", "", "admission algorithm (bloom-filter, prob, size, size-prob, adaptsize)")
		warmup       = flag.Float64("warmup-secs", -1, "warmup period in trace-time seconds")
		reportIv     = flag.Float64("report-interval", -1, "interval report period in trace-time seconds")
		samplerRatio = flag.Float64("sampler-ratio", -1, "spatial sampler keep fraction in [0,1]")
		ignoreSize   = flag.Bool("ignore-obj-size", false, "rewrite every object size to 1")
		outputPath   = flag.String("output", "", "path to append the summary line to")
		debugChecks  = flag.Bool("debug-checks", false, "register cache invariant checks with the health checker")
	)
	flag.Parse()

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	applyFlagOverrides(cfg, flagOverrides{
		tracePath: *tracePath, traceFormat: *traceFormat, readerParams: *readerParams,
		capacity: *capacity, policy: *policy, admission: *admissionN,
		warmup: *warmup, reportIv: *reportIv, samplerRatio: *samplerRatio,
		ignoreSize: *ignoreSize, outputPath: *outputPath, debugChecks: *debugChecks,
	})

	if *readerParams != "" {
		parsed, err := config.ParseReaderParamString(cfg.Trace, *readerParams)
		if err != nil {
			return err
		}
		cfg.Trace = parsed
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logOutput := os.Stderr
	logger := logging.New(level, logOutput)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if s3source.IsRemote(cfg.Trace.Path) {
		src, err := s3source.New(ctx, s3source.DefaultConfig(), logger)
		if err != nil {
			return err
		}
		localPath, err := src.Fetch(ctx, cfg.Trace.Path)
		if err != nil {
			return err
		}
		cfg.Trace.Path = localPath
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled:   cfg.Metrics.Enabled,
			Port:      cfg.Metrics.Port,
			Path:      cfg.Metrics.Path,
			Namespace: cfg.Metrics.Namespace,
		})
		if err != nil {
			return err
		}
	}

	var checker *health.Checker
	if cfg.Health.Enabled {
		checker, err = health.NewChecker(&health.Config{
			Enabled:       true,
			CheckInterval: cfg.Health.CheckInterval,
			Timeout:       cfg.Health.Timeout,
		})
		if err != nil {
			return err
		}
		if err := checker.Start(ctx); err != nil {
			return err
		}
		defer checker.Stop()

		obs := obsserver.NewServer(obsserver.Config{
			Address:       cfg.Health.ObsServerAddr,
			EnableCORS:    cfg.Health.ObsServerCORS,
			EnableMetrics: collector != nil,
		}, checker, collector)
		obs.StartBackground()
		defer obs.Shutdown(context.Background())
	}

	d, err := driver.New(*cfg, logger, collector, checker)
	if err != nil {
		return err
	}
	defer d.Close()

	_, err = d.Run()
	return err
}

type flagOverrides struct {
	tracePath, traceFormat, readerParams string
	capacity, policy, admission          string
	warmup, reportIv, samplerRatio       float64
	ignoreSize                           bool
	outputPath                           string
	debugChecks                          bool
}

// applyFlagOverrides layers CLI flag values onto a loaded configuration.
// Flags take priority over the config file and environment, matching the
// teacher's own config-then-env-then-flags precedence.
func applyFlagOverrides(cfg *config.Configuration, f flagOverrides) {
	if f.tracePath != "" {
		cfg.Trace.Path = f.tracePath
	}
	if f.traceFormat != "" {
		cfg.Trace.Format = strings.ToLower(f.traceFormat)
	}
	if f.capacity != "" {
		cfg.Cache.Capacity = f.capacity
	}
	if f.policy != "" {
		cfg.Cache.Policy = strings.ToLower(f.policy)
	}
	if f.admission != "" {
		cfg.Admission.Name = strings.ToLower(f.admission)
	}
	if f.warmup >= 0 {
		cfg.Driver.WarmupSeconds = f.warmup
	}
	if f.reportIv >= 0 {
		cfg.Driver.ReportIntervalSecond = f.reportIv
	}
	if f.samplerRatio >= 0 {
		cfg.Trace.SamplerRatio = f.samplerRatio
	}
	if f.ignoreSize {
		cfg.Trace.IgnoreObjSize = true
	}
	if f.outputPath != "" {
		cfg.Driver.OutputPath = f.outputPath
	}
	if f.debugChecks {
		cfg.Driver.DebugChecks = true
	}
}
