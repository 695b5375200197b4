// Package driver implements the single-threaded simulation loop of spec
// §4.I: replay a trace through a cache shell, track warmup and miss
// statistics, and emit interval/summary report lines in the exact formats
// spec §6 specifies. Grounded on the teacher's top-level sync-engine loop
// for the shape of a sequential "read, process, report on an interval,
// summarize at the end" driver; the teacher has no batch-simulation
// analog, so the loop body itself is built directly from spec §4.I.
package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cachesim/cachesim/internal/admission"
	"github.com/cachesim/cachesim/internal/cache"
	"github.com/cachesim/cachesim/internal/cache/policy/lfu"
	"github.com/cachesim/cachesim/internal/cache/policy/lru"
	"github.com/cachesim/cachesim/internal/cache/policy/scaffolded"
	"github.com/cachesim/cachesim/internal/config"
	"github.com/cachesim/cachesim/internal/health"
	"github.com/cachesim/cachesim/internal/logging"
	"github.com/cachesim/cachesim/internal/metrics"
	"github.com/cachesim/cachesim/internal/sampler"
	"github.com/cachesim/cachesim/internal/trace"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// Stats accumulates the counters the report lines are built from.
type Stats struct {
	ReqCount  int64
	ReqBytes  int64
	MissCount int64
	MissBytes int64
}

// MissRatio returns miss_count/req_count, or 0 before any post-warmup
// request has been counted.
func (s Stats) MissRatio() float64 {
	if s.ReqCount == 0 {
		return 0
	}
	return float64(s.MissCount) / float64(s.ReqCount)
}

// Driver runs one trace through one cache shell (spec §4.I).
type Driver struct {
	cfg    config.Configuration
	reader *trace.Reader
	shell  *cache.Shell
	logger *logging.Logger
	out    io.Writer
}

// New builds a Driver from a fully validated configuration. collector and
// checker may be nil; when checker is non-nil and cfg.Driver.DebugChecks is
// set, the cache shell's invariants are registered as a health check.
func New(cfg config.Configuration, logger *logging.Logger, collector *metrics.Collector, checker *health.Checker) (*Driver, error) {
	capacity, err := logging.ParseBytes(cfg.Cache.Capacity)
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeConfigInvalid, "invalid cache.capacity").
			WithComponent("driver").WithCause(err)
	}

	policy, err := newPolicy(cfg.Cache)
	if err != nil {
		return nil, err
	}

	adm, err := admission.New(cfg.Admission.Name, cfg.Admission.Params)
	if err != nil {
		return nil, err
	}

	shell := cache.NewShell(cache.Config{
		Capacity:              capacity,
		PerObjectMetadataSize: int64(cfg.Cache.PerObjectMetadataSize),
		ConsiderObjMetadata:   cfg.Cache.ConsiderObjMetadata,
	}, policy, adm, collector, logger)

	if checker != nil && cfg.Driver.DebugChecks {
		_ = checker.RegisterCheck("cache-invariants", "cache shell I1 invariant and occupancy accounting",
			health.CategoryInvariant, health.PriorityHigh,
			health.InvariantCheck(shell.AssertInvariants))
	}

	var samp sampler.Sampler
	if cfg.Trace.SamplerRatio > 0 && cfg.Trace.SamplerRatio < 1 {
		samp = sampler.NewSpatial(cfg.Trace.SamplerRatio)
	}

	reader, err := trace.Open(cfg.Trace, samp, logger)
	if err != nil {
		return nil, err
	}

	out := io.Writer(os.Stdout)

	return &Driver{
		cfg:    cfg,
		reader: reader,
		shell:  shell,
		logger: logger,
		out:    out,
	}, nil
}

func newPolicy(cfg config.CacheConfig) (cache.Policy, error) {
	switch strings.ToLower(cfg.Policy) {
	case "lru":
		return lru.New(), nil
	case "lfu":
		return lfu.New(), nil
	case "scaffolded":
		decision, err := decisionFuncByName(cfg.DecisionFunction)
		if err != nil {
			return nil, err
		}
		return scaffolded.New(scaffolded.Config{
			DeltaWindowSize: cfg.DeltaWindowSize,
			HistorySize:     cfg.HistorySize,
			CandidateWindow: cfg.CandidateWindow,
			Decision:        decision,
		}), nil
	default:
		return nil, simerr.NewError(simerr.ErrCodeConfigInvalid, "unknown cache policy").
			WithComponent("driver").WithDetail("policy", cfg.Policy)
	}
}

func decisionFuncByName(name string) (scaffolded.DecisionFunc, error) {
	switch strings.ToLower(name) {
	case "", "lru":
		return scaffolded.LRUDecision, nil
	case "fifo":
		return scaffolded.FIFODecision, nil
	case "lfu":
		return scaffolded.LFUDecision, nil
	default:
		return nil, simerr.NewError(simerr.ErrCodeConfigInvalid, "unknown scaffolded decision function").
			WithComponent("driver").WithDetail("decision_function", name)
	}
}

// Close releases the driver's reader and cache shell.
func (d *Driver) Close() {
	d.shell.Close()
	d.reader.Close()
}

// Run executes the simulation loop of spec §4.I to completion and returns
// the final post-warmup statistics.
func (d *Driver) Run() (Stats, error) {
	var stats Stats
	var startTS float64
	haveStart := false
	warmedUp := false
	var wallStart time.Time
	var nextReportAt float64
	var lastReportReq, lastReportMiss int64

	traceName := filepath.Base(d.cfg.Trace.Path)
	cacheName := d.shell.PolicyName()

	for {
		req, err := d.reader.ReadOne()
		if err != nil {
			if simerr.IsEndOfStream(err) {
				break
			}
			return stats, err
		}

		if !haveStart {
			startTS = req.ClockTime
			haveStart = true
			nextReportAt = d.cfg.Driver.ReportIntervalSecond
		}
		req.ClockTime -= startTS

		if req.ClockTime <= d.cfg.Driver.WarmupSeconds {
			if _, err := d.shell.Get(&req); err != nil {
				return stats, err
			}
			continue
		}

		if !warmedUp {
			warmedUp = true
			wallStart = time.Now()
		}

		hit, err := d.shell.Get(&req)
		if err != nil {
			return stats, err
		}

		stats.ReqCount++
		stats.ReqBytes += req.ObjSize
		if !hit {
			stats.MissCount++
			stats.MissBytes += req.ObjSize
		}

		if d.cfg.Driver.ReportIntervalSecond > 0 && req.ClockTime >= nextReportAt {
			ivReq := stats.ReqCount - lastReportReq
			ivMiss := stats.MissCount - lastReportMiss
			ivRatio := 0.0
			if ivReq > 0 {
				ivRatio = float64(ivMiss) / float64(ivReq)
			}
			d.emitIntervalReport(traceName, cacheName, req.ClockTime, stats, ivRatio)
			lastReportReq, lastReportMiss = stats.ReqCount, stats.MissCount
			for nextReportAt <= req.ClockTime {
				nextReportAt += d.cfg.Driver.ReportIntervalSecond
			}
		}
	}

	var elapsed time.Duration
	if warmedUp {
		elapsed = time.Since(wallStart)
	}
	return stats, d.emitSummary(traceName, cacheName, stats, elapsed)
}

func (d *Driver) emitIntervalReport(traceName, cacheName string, clockTime float64, stats Stats, ivRatio float64) {
	hours := clockTime / 3600.0
	line := fmt.Sprintf("%s %s %.2f hour: %d requests, miss ratio %.4f, interval miss ratio %.4f",
		traceName, cacheName, hours, stats.ReqCount, stats.MissRatio(), ivRatio)
	fmt.Fprintln(d.out, line)
	if d.logger != nil {
		d.logger.Info("%s", line)
	}
}

func (d *Driver) emitSummary(traceName, cacheName string, stats Stats, elapsed time.Duration) error {
	humanSize := d.cfg.Cache.Capacity
	if !d.cfg.Trace.IgnoreObjSize {
		if capacity, err := logging.ParseBytes(d.cfg.Cache.Capacity); err == nil {
			humanSize = strings.ReplaceAll(logging.FormatBytes(capacity), " ", "")
		}
	}

	var mqps float64
	if elapsed > 0 {
		mqps = float64(stats.ReqCount) / elapsed.Seconds() / 1e6
	}

	line := fmt.Sprintf("%s %s cache size %s, %16d req, miss ratio %.4f, throughput %.2f MQPS",
		d.cfg.Trace.Path, cacheName, humanSize, stats.ReqCount, stats.MissRatio(), mqps)

	fmt.Fprintln(d.out, line)
	if d.logger != nil {
		d.logger.Info("%s", line)
	}

	if d.cfg.Driver.OutputPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.cfg.Driver.OutputPath), 0o755); err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to create output directory").
			WithComponent("driver").WithCause(err)
	}
	f, err := os.OpenFile(d.cfg.Driver.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to open output file").
			WithComponent("driver").WithCause(err).WithDetail("path", d.cfg.Driver.OutputPath)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return simerr.NewError(simerr.ErrCodeInternalError, "failed to append summary line to output file").
			WithComponent("driver").WithCause(err)
	}
	return nil
}
