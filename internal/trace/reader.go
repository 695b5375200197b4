// Package trace implements the trace-reading pipeline from spec §4.B: a
// uniform request stream over heterogeneous on-disk trace layouts, with
// forward/backward iteration, position seeking, and the reader-level
// filters (zero-size skipping, size normalization, sampling, run capping)
// that sit between the raw on-disk record and the request the rest of the
// simulator sees.
package trace

import (
	"path/filepath"
	"strings"

	"github.com/cachesim/cachesim/internal/config"
	"github.com/cachesim/cachesim/internal/logging"
	"github.com/cachesim/cachesim/internal/request"
	"github.com/cachesim/cachesim/internal/sampler"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// readerSource is the layout-specific engine a Reader drives: a text
// (CSV/plain) source or a binary (mmap'd, fixed-width) source. Both
// implement the same forward/backward/seek/reset/count/clone/close
// primitives over their respective on-disk shape.
type readerSource interface {
	next() (request.Request, error)
	prev() (request.Request, error)
	seekFraction(p float64) error
	reset() error
	count() (int64, error)
	clone() (readerSource, error)
	close() error
}

// Reader is the uniform, lazy request stream described by spec §4.B. It
// wraps a layout-specific readerSource with the format-agnostic filters:
// optional sampling, zero-size skipping, obj_size normalization, and a
// cap on the number of successfully emitted requests.
type Reader struct {
	cfg     config.TraceConfig
	format  Format
	source  readerSource
	sampler sampler.Sampler
	logger  *logging.Logger

	nEmitted   int64
	cachedSize int64
	sizeCached bool
}

// Open resolves the trace's format (declared name or path suffix) and
// builds the appropriate layout-specific source. A ".gz" path suffix marks
// a compressed trace (spec §4.B: "a file that may be text, a packed binary
// layout, or either compressed"); the suffix is stripped before format
// auto-detection runs, matching the libCacheSim original's suffix-gated
// compression handling.
func Open(cfg config.TraceConfig, samp sampler.Sampler, logger *logging.Logger) (*Reader, error) {
	compressed := isCompressedPath(cfg.Path)
	detectPath := cfg.Path
	if compressed {
		detectPath = strings.TrimSuffix(cfg.Path, filepath.Ext(cfg.Path))
	}

	format, err := DetectFormat(detectPath, cfg.Format)
	if err != nil {
		return nil, err
	}

	r := &Reader{cfg: cfg, format: format, sampler: samp, logger: logger}

	if format.isText() {
		var src readerSource
		if compressed {
			src, err = newCompressedTextSource(cfg.Path, format == FormatCSV, cfg)
		} else {
			src, err = newTextSource(cfg.Path, format == FormatCSV, cfg)
		}
		if err != nil {
			return nil, err
		}
		r.source = src
		return r, nil
	}

	layout, err := resolveBinaryLayout(format, cfg.BinaryFormat)
	if err != nil {
		return nil, err
	}
	var src readerSource
	if compressed {
		src, err = newBinarySourceCompressed(cfg.Path, layout, cfg.TraceStartOffset)
	} else {
		src, err = newBinarySource(cfg.Path, layout, cfg.TraceStartOffset)
	}
	if err != nil {
		return nil, err
	}
	r.source = src
	return r, nil
}

// applyFilters normalizes a raw decoded request per spec §4.B's failure
// semantics: scales obj_size by block_size when translating a block-address
// trace's byte range, rewrites obj_size to 1 when configured to ignore
// sizes entirely, and reports whether the request should be skipped
// (size-0 when configured to ignore them).
func (r *Reader) applyFilters(req *request.Request) (skip bool) {
	if r.cfg.BlockSize > 1 {
		req.ObjSize *= int64(r.cfg.BlockSize)
	}
	if r.cfg.IgnoreObjSize {
		req.ObjSize = 1
	}
	if r.cfg.IgnoreSizeZeroRequests && req.ObjSize == 0 {
		return true
	}
	return false
}

// ReadOne advances and returns the next request, applying the attached
// sampler transparently (skipping rejected requests without recursion) and
// failing with EndOfStream when exhausted or cap_at_n_req is reached
// (spec §4.B).
func (r *Reader) ReadOne() (request.Request, error) {
	if r.cfg.CapAtNReq > 0 && r.nEmitted >= r.cfg.CapAtNReq {
		return request.Request{}, simerr.NewError(simerr.ErrCodeEndOfStream, "cap_at_n_req reached").
			WithComponent("trace")
	}

	for {
		req, err := r.source.next()
		if err != nil {
			return request.Request{}, err
		}
		if r.applyFilters(&req) {
			continue
		}
		if r.sampler != nil && !r.sampler.Sample(&req) {
			continue
		}
		r.nEmitted++
		return req, nil
	}
}

// ReadOneAbove returns the request immediately preceding the current
// position, moving the cursor there (spec §4.B); used by the oracle-general
// converter to replay a trace in reverse.
func (r *Reader) ReadOneAbove() (request.Request, error) {
	req, err := r.source.prev()
	if err != nil {
		return request.Request{}, err
	}
	r.applyFilters(&req)
	return req, nil
}

// GoBackOne repositions the reader one request earlier.
func (r *Reader) GoBackOne() error {
	_, err := r.source.prev()
	return err
}

// GoBackTwo repositions the reader two requests earlier.
func (r *Reader) GoBackTwo() error {
	if err := r.GoBackOne(); err != nil {
		return err
	}
	return r.GoBackOne()
}

// SeekFraction jumps to fraction p in [0,1] of the trace. Binary layouts
// round down to a record boundary; text layouts skip past the rest of the
// line the offset lands in, so the next read starts on a full line.
func (r *Reader) SeekFraction(p float64) error {
	return r.source.seekFraction(p)
}

// Reset rewinds to the start of the trace. Idempotent: two consecutive
// resets behave as one (spec §8).
func (r *Reader) Reset() error {
	r.nEmitted = 0
	return r.source.reset()
}

// Count returns the number of records in the trace (beyond
// trace_start_offset), computed in O(1) for binary layouts and via a
// one-shot scan on a clone (then cached) for text layouts (spec §4.B).
func (r *Reader) Count() (int64, error) {
	if r.sizeCached {
		return r.cachedSize, nil
	}
	n, err := r.source.count()
	if err != nil {
		return 0, err
	}
	r.cachedSize = n
	r.sizeCached = true
	return n, nil
}

// Clone produces an independent reader over the same file, sharing
// read-only mapped data where possible (binary layouts share their mmap
// directly; text layouts open an independent file handle).
func (r *Reader) Clone() (*Reader, error) {
	src, err := r.source.clone()
	if err != nil {
		return nil, err
	}
	var samp sampler.Sampler
	if r.sampler != nil {
		samp = r.sampler.Clone()
	}
	return &Reader{cfg: r.cfg, format: r.format, source: src, sampler: samp, logger: r.logger}, nil
}

// Close releases the reader's file handles and memory mappings.
// Idempotent.
func (r *Reader) Close() error {
	return r.source.close()
}

// Format reports the trace's resolved on-disk layout.
func (r *Reader) Format() Format { return r.format }
