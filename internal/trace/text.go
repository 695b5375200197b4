package trace

import (
	"bytes"
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/cachesim/cachesim/internal/config"
	"github.com/cachesim/cachesim/internal/request"
	"github.com/cachesim/cachesim/internal/sampler"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// backwardScanChunk bounds how much of the file a single backward scan for
// a line separator reads at a time (spec §4.B: "scanning backward in
// bounded chunks").
const backwardScanChunk = 4096

// textSource reads delimited-text trace records (CSV or plain text) with
// forward/backward line-level navigation (spec §4.B). pos is the byte
// offset at which the next forward read begins; it always sits on a line
// boundary except transiently right after Open/Reset, before the header
// line (if any) is skipped.
type textSource struct {
	f           *os.File
	owner       bool
	closed      bool
	size        int64
	startOffset int64
	pos         int64
	csvMode     bool
	delim       rune
	cfg         config.TraceConfig
}

func newTextSource(path string, csvMode bool, cfg config.TraceConfig) (*textSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to open trace file").
			WithComponent("trace").WithCause(err).WithDetail("path", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, simerr.NewError(simerr.ErrCodeIoStatFailed, "failed to stat trace file").
			WithComponent("trace").WithCause(err).WithDetail("path", path)
	}

	delim := ','
	if cfg.Delimiter != "" {
		delim = rune(cfg.Delimiter[0])
	}

	t := &textSource{
		f: f, owner: true, size: st.Size(), startOffset: cfg.TraceStartOffset,
		csvMode: csvMode, delim: delim, cfg: cfg,
	}
	if err := t.reset(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// readRawLineAt reads the line beginning at offset, returning its content
// (without a trailing newline) and the offset the following line begins
// at. Returns io.EOF-classified SimError when offset >= size.
func (t *textSource) readRawLineAt(offset int64) (string, int64, error) {
	if offset >= t.size {
		return "", offset, simerr.NewError(simerr.ErrCodeEndOfStream, "end of trace").WithComponent("trace")
	}

	const readChunk = 65536
	var buf []byte
	cur := offset
	for {
		n := int64(readChunk)
		if cur+n > t.size {
			n = t.size - cur
		}
		chunk := make([]byte, n)
		if _, err := t.f.ReadAt(chunk, cur); err != nil && int64(len(chunk)) != n {
			return "", offset, simerr.NewError(simerr.ErrCodeTraceMalformed, "failed to read trace line").
				WithComponent("trace").WithCause(err)
		}
		buf = append(buf, chunk...)
		if i := bytes.IndexByte(chunk, '\n'); i >= 0 || cur+n >= t.size {
			nlIdx := bytes.IndexByte(buf, '\n')
			if nlIdx >= 0 {
				line := buf[:nlIdx]
				line = bytes.TrimSuffix(line, []byte{'\r'})
				return string(line), offset + int64(nlIdx) + 1, nil
			}
			// Reached EOF without a newline: the final, unterminated line.
			return string(buf), t.size, nil
		}
		cur += n
	}
}

// lineStartBefore finds the start offset of the line immediately
// preceding the line that starts at boundary, scanning backward in bounded
// chunks (spec §4.B), honoring startOffset as the absolute floor. Returns
// EndOfStream if boundary is already at (or before) startOffset, and
// TraceMalformed if boundary == size but the file does not end in a
// newline (spec §9 Open Question: SeekFraction(1.0)+GoBackOne behavior).
func (t *textSource) lineStartBefore(boundary int64) (int64, error) {
	if boundary <= t.startOffset {
		return 0, simerr.NewError(simerr.ErrCodeEndOfStream, "start of trace").WithComponent("trace")
	}

	if boundary == t.size {
		last := make([]byte, 1)
		if _, err := t.f.ReadAt(last, t.size-1); err != nil || last[0] != '\n' {
			return 0, simerr.NewError(simerr.ErrCodeTraceMalformed, "trace file does not end with a newline").
				WithComponent("trace")
		}
	}

	// The byte at boundary-1 is the '\n' ending the preceding line (unless
	// boundary==startOffset, handled above); search backward from
	// boundary-2 for the '\n' that ends the line before that one.
	searchEnd := boundary - 2
	for searchEnd >= t.startOffset {
		chunkStart := searchEnd - backwardScanChunk + 1
		if chunkStart < t.startOffset {
			chunkStart = t.startOffset
		}
		n := searchEnd - chunkStart + 1
		buf := make([]byte, n)
		if _, err := t.f.ReadAt(buf, chunkStart); err != nil {
			return 0, simerr.NewError(simerr.ErrCodeTraceMalformed, "failed to scan trace backward").
				WithComponent("trace").WithCause(err)
		}
		if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
			return chunkStart + int64(i) + 1, nil
		}
		if chunkStart == t.startOffset {
			break
		}
		searchEnd = chunkStart - 1
	}
	return t.startOffset, nil
}

func (t *textSource) splitFields(line string) []string {
	if t.csvMode {
		r := csv.NewReader(strings.NewReader(line))
		r.Comma = t.delim
		r.LazyQuotes = true
		fields, err := r.Read()
		if err == nil {
			return fields
		}
	}
	return strings.Split(line, string(t.delim))
}

func col(fields []string, idx int) (string, bool) {
	if idx <= 0 || idx > len(fields) {
		return "", false
	}
	return strings.TrimSpace(fields[idx-1]), true
}

func (t *textSource) decodeLine(line string) (request.Request, error) {
	var req request.Request
	req.NextAccessVtime = request.NoNextAccess
	fields := t.splitFields(line)

	if s, ok := col(fields, t.cfg.TimeCol); ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, simerr.NewError(simerr.ErrCodeTraceMalformed, "malformed time column").
				WithComponent("trace").WithCause(err).WithDetail("value", s)
		}
		req.ClockTime = v
	}

	if s, ok := col(fields, t.cfg.ObjIDCol); ok {
		if t.cfg.ObjIDIsNum {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return req, simerr.NewError(simerr.ErrCodeTraceMalformed, "malformed obj_id column").
					WithComponent("trace").WithCause(err).WithDetail("value", s)
			}
			req.ObjID = v
		} else {
			req.ObjID = sampler.HashString(s)
		}
	}

	if s, ok := col(fields, t.cfg.ObjSizeCol); ok {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return req, simerr.NewError(simerr.ErrCodeTraceMalformed, "malformed obj_size column").
				WithComponent("trace").WithCause(err).WithDetail("value", s)
		}
		req.ObjSize = v
	}

	if s, ok := col(fields, t.cfg.OpCol); ok {
		v, err := strconv.ParseUint(s, 10, 8)
		if err == nil {
			req.Op = uint8(v)
		}
	}

	if s, ok := col(fields, t.cfg.TenantCol); ok {
		v, err := strconv.ParseUint(s, 10, 32)
		if err == nil {
			req.Tenant = uint32(v)
		}
	}

	if s, ok := col(fields, t.cfg.TTLCol); ok {
		v, err := strconv.ParseInt(s, 10, 32)
		if err == nil {
			req.TTL = int32(v)
		}
	}

	for i, fc := range t.cfg.FeatureCols {
		if i >= request.FeatureCount {
			break
		}
		if s, ok := col(fields, fc); ok {
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				req.Features[i] = v
			}
		}
	}

	req.Valid = true
	return req, nil
}

func (t *textSource) next() (request.Request, error) {
	for {
		line, next, err := t.readRawLineAt(t.pos)
		if err != nil {
			return request.Request{}, err
		}
		t.pos = next
		if line == "" {
			continue
		}
		return t.decodeLine(line)
	}
}

func (t *textSource) prev() (request.Request, error) {
	start, err := t.lineStartBefore(t.pos)
	if err != nil {
		return request.Request{}, err
	}
	t.pos = start
	line, _, err := t.readRawLineAt(start)
	if err != nil {
		return request.Request{}, err
	}
	return t.decodeLine(line)
}

func (t *textSource) seekFraction(p float64) error {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	target := t.startOffset + int64(p*float64(t.size-t.startOffset))
	if target >= t.size {
		t.pos = t.size
		return nil
	}
	if target <= t.startOffset {
		return t.reset()
	}

	// Consume the partial line so the next read starts on a full record
	// (spec §4.B).
	_, next, err := t.readRawLineAt(target)
	if err != nil {
		return err
	}
	t.pos = next
	return nil
}

func (t *textSource) reset() error {
	t.pos = t.startOffset
	if t.cfg.HasHeader {
		_, next, err := t.readRawLineAt(t.pos)
		if err != nil && !simerr.IsEndOfStream(err) {
			return err
		}
		t.pos = next
	}
	return nil
}

func (t *textSource) count() (int64, error) {
	clone, err := t.clone()
	if err != nil {
		return 0, err
	}
	defer clone.close()

	var n int64
	for {
		if _, err := clone.next(); err != nil {
			if simerr.IsEndOfStream(err) {
				break
			}
			return 0, err
		}
		n++
	}
	return n, nil
}

func (t *textSource) clone() (readerSource, error) {
	f, err := os.Open(t.f.Name())
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to reopen trace file for clone").
			WithComponent("trace").WithCause(err)
	}
	clone := &textSource{
		f: f, owner: true, size: t.size, startOffset: t.startOffset,
		csvMode: t.csvMode, delim: t.delim, cfg: t.cfg,
	}
	if err := clone.reset(); err != nil {
		f.Close()
		return nil, err
	}
	return clone, nil
}

func (t *textSource) close() error {
	if !t.owner || t.closed {
		return nil
	}
	t.closed = true
	return t.f.Close()
}
