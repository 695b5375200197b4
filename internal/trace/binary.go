package trace

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"syscall"

	"github.com/cachesim/cachesim/internal/request"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// binaryData is the trace content backing a binarySource, shared read-only
// by a reader and all of its clones. For an uncompressed trace this is a
// mmap'd region the original owner munmaps on close; for a compressed
// trace (compressed=true) it is a plain decompressed buffer with nothing
// to unmap. Either way every clone can safely index into the exact same
// []byte, matching spec §4.B's clone() contract ("sharing read-only mapped
// data where possible").
type binaryData struct {
	bytes      []byte
	f          *os.File
	compressed bool
}

func openBinaryData(path string) (*binaryData, error) {
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
	if st.Size() == 0 {
		return &binaryData{f: f}, nil
	}

	mapped, err := syscall.Mmap(int(f.Fd()), 0, int(st.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, simerr.NewError(simerr.ErrCodeMmapFailed, "failed to mmap trace file").
			WithComponent("trace").WithCause(err).WithDetail("path", path)
	}
	return &binaryData{bytes: mapped, f: f}, nil
}

// openBinaryDataCompressed fully decompresses a gzip binary trace into
// memory once (spec §4.B assigns compressed traces the same one-shot-scan
// cost model it assigns text traces); mmap has nothing to map a compressed
// file onto, so the decompressed bytes are held directly instead.
func openBinaryDataCompressed(path string) (*binaryData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to open compressed trace file").
			WithComponent("trace").WithCause(err).WithDetail("path", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeTraceMalformed, "failed to open gzip trace stream").
			WithComponent("trace").WithCause(err).WithDetail("path", path)
	}
	defer gz.Close()

	buf, err := io.ReadAll(gz)
	if err != nil {
		return nil, simerr.NewError(simerr.ErrCodeTraceMalformed, "failed to decompress trace").
			WithComponent("trace").WithCause(err).WithDetail("path", path)
	}
	return &binaryData{bytes: buf, compressed: true}, nil
}

func (d *binaryData) close() error {
	if d.compressed {
		return nil
	}
	if d.bytes != nil {
		if err := syscall.Munmap(d.bytes); err != nil {
			d.f.Close()
			return simerr.NewError(simerr.ErrCodeInternalError, "failed to munmap trace file").
				WithComponent("trace").WithCause(err)
		}
	}
	return d.f.Close()
}

// binarySource reads fixed-width binary records from a mmap'd trace file
// (spec §4.B). idx is the index of the next record a forward read() will
// return; startIdx is the record-aligned floor derived from
// trace_start_offset.
type binarySource struct {
	data     *binaryData
	owner    bool
	closed   bool
	layout   BinaryLayout
	itemCnt  int64
	startIdx int64
	idx      int64
}

func newBinarySource(path string, layout BinaryLayout, startOffset int64) (*binarySource, error) {
	data, err := openBinaryData(path)
	if err != nil {
		return nil, err
	}
	itemCnt := int64(len(data.bytes)) / layout.ItemSize
	startIdx := startOffset / layout.ItemSize
	if startIdx > itemCnt {
		startIdx = itemCnt
	}
	return &binarySource{data: data, owner: true, layout: layout, itemCnt: itemCnt, startIdx: startIdx, idx: startIdx}, nil
}

// newBinarySourceCompressed is newBinarySource's compressed counterpart:
// same binarySource, backed by a decompressed in-memory buffer instead of
// a memory-mapped file.
func newBinarySourceCompressed(path string, layout BinaryLayout, startOffset int64) (*binarySource, error) {
	data, err := openBinaryDataCompressed(path)
	if err != nil {
		return nil, err
	}
	itemCnt := int64(len(data.bytes)) / layout.ItemSize
	startIdx := startOffset / layout.ItemSize
	if startIdx > itemCnt {
		startIdx = itemCnt
	}
	return &binarySource{data: data, owner: true, layout: layout, itemCnt: itemCnt, startIdx: startIdx, idx: startIdx}, nil
}

func (b *binarySource) decodeAt(idx int64) (request.Request, error) {
	var req request.Request
	req.NextAccessVtime = request.NoNextAccess

	off := idx * b.layout.ItemSize
	rec := b.data.bytes[off : off+b.layout.ItemSize]

	for _, f := range b.layout.Fields {
		v := decodeField(rec, f)
		switch f.role {
		case "time":
			req.ClockTime = float64(v)
		case "obj_id":
			req.ObjID = uint64(v)
		case "size":
			req.ObjSize = v
		case "next_access_vtime":
			req.NextAccessVtime = v
		case "op":
			req.Op = uint8(v)
		case "tenant":
			req.Tenant = uint32(v)
		case "ttl":
			req.TTL = int32(v)
		}
	}
	req.Valid = true
	return req, nil
}

func decodeField(rec []byte, f binaryField) int64 {
	switch f.kind {
	case kindU8:
		return int64(rec[f.offset])
	case kindI8:
		return int64(int8(rec[f.offset]))
	case kindU16:
		return int64(binary.LittleEndian.Uint16(rec[f.offset:]))
	case kindI16:
		return int64(int16(binary.LittleEndian.Uint16(rec[f.offset:])))
	case kindU32:
		return int64(binary.LittleEndian.Uint32(rec[f.offset:]))
	case kindI32:
		return int64(int32(binary.LittleEndian.Uint32(rec[f.offset:])))
	case kindU64:
		return int64(binary.LittleEndian.Uint64(rec[f.offset:]))
	case kindI64:
		return int64(binary.LittleEndian.Uint64(rec[f.offset:]))
	default:
		return 0
	}
}

// EncodeOracleGeneral writes req into rec in the fixed 24-byte
// oracle-general layout, for the oracle-general converter
// (internal/trace/convert).
func EncodeOracleGeneral(req request.Request, rec []byte) {
	binary.LittleEndian.PutUint32(rec[0:4], uint32(req.ClockTime))
	binary.LittleEndian.PutUint64(rec[4:12], req.ObjID)
	binary.LittleEndian.PutUint32(rec[12:16], uint32(req.ObjSize))
	binary.LittleEndian.PutUint64(rec[16:24], uint64(req.NextAccessVtime))
}

func (b *binarySource) next() (request.Request, error) {
	if b.idx >= b.itemCnt {
		return request.Request{}, simerr.NewError(simerr.ErrCodeEndOfStream, "end of trace").WithComponent("trace")
	}
	req, err := b.decodeAt(b.idx)
	if err != nil {
		return request.Request{}, err
	}
	b.idx++
	return req, nil
}

func (b *binarySource) prev() (request.Request, error) {
	if b.idx-1 < b.startIdx {
		return request.Request{}, simerr.NewError(simerr.ErrCodeEndOfStream, "start of trace").WithComponent("trace")
	}
	b.idx--
	return b.decodeAt(b.idx)
}

func (b *binarySource) seekFraction(p float64) error {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	span := b.itemCnt - b.startIdx
	b.idx = b.startIdx + int64(p*float64(span))
	if b.idx > b.itemCnt {
		b.idx = b.itemCnt
	}
	return nil
}

func (b *binarySource) reset() error {
	b.idx = b.startIdx
	return nil
}

func (b *binarySource) count() (int64, error) {
	return b.itemCnt - b.startIdx, nil
}

func (b *binarySource) clone() (readerSource, error) {
	return &binarySource{data: b.data, owner: false, layout: b.layout, itemCnt: b.itemCnt, startIdx: b.startIdx, idx: b.startIdx}, nil
}

func (b *binarySource) close() error {
	if !b.owner || b.closed {
		return nil
	}
	b.closed = true
	return b.data.close()
}
