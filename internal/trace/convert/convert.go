// Package convert implements the oracle-general trace converter supplement
// (SPEC_FULL.md §4, grounded on
// libCacheSim's bin/traceUtils/traceConvOracleGeneral.cpp): reshaping an
// arbitrary forward-readable trace into the oracle-general binary layout
// (spec §6), computing next_access_vtime per spec §9's two-pass
// reverse-read re-architecture of the original's forward-pass-plus-mmap
// design.
package convert

import (
	"encoding/binary"
	"os"

	"github.com/cachesim/cachesim/internal/request"
	"github.com/cachesim/cachesim/internal/trace"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// OracleGeneral converts r (already positioned at its start) into the
// oracle-general binary layout at outPath. r is left positioned at end of
// stream; callers that need to reuse it should pass a Clone.
//
// Pass 1 walks r backward from its last record to its first (via
// ReadOneAbove), writing each visited record to a temporary file with its
// next_access_vtime expressed as a "distance from the end of the backward
// walk" — the only value computable without already knowing the trace's
// total length. Pass 2 reads that temporary file in reverse (which
// reproduces forward trace order, since pass 1 wrote it in reverse),
// translating each record's distance-from-end into an absolute forward
// request index before writing it to outPath. The temporary file is owned
// by this function and removed on success.
func OracleGeneral(r *trace.Reader, outPath string) error {
	tmp, err := os.CreateTemp("", "cachesim-oracle-pass1-*.bin")
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to create conversion temp file").
			WithComponent("convert").WithCause(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := r.SeekFraction(1.0); err != nil {
		tmp.Close()
		return err
	}

	lastSeenStep := make(map[uint64]int64)
	var step int64

	for {
		req, err := r.ReadOneAbove()
		if err != nil {
			if simerr.IsEndOfStream(err) {
				break
			}
			tmp.Close()
			return err
		}

		nextFromEnd := int64(-1)
		if s, ok := lastSeenStep[req.ObjID]; ok {
			nextFromEnd = s
		}
		lastSeenStep[req.ObjID] = step

		var rec [trace.OracleGeneralItemSize]byte
		encodeRecord(rec[:], req, nextFromEnd)
		if _, err := tmp.Write(rec[:]); err != nil {
			tmp.Close()
			return simerr.NewError(simerr.ErrCodeInternalError, "failed to write conversion temp file").
				WithComponent("convert").WithCause(err)
		}
		step++
	}

	if err := tmp.Close(); err != nil {
		return simerr.NewError(simerr.ErrCodeInternalError, "failed to close conversion temp file").
			WithComponent("convert").WithCause(err)
	}

	return pass2(tmpPath, outPath, step)
}

// pass2 reads the pass-1 temp file in reverse record order (reproducing
// forward trace order) and writes outPath with next_access_vtime rewritten
// to an absolute forward request index.
func pass2(tmpPath, outPath string, total int64) error {
	tmp, err := os.Open(tmpPath)
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to reopen conversion temp file").
			WithComponent("convert").WithCause(err)
	}
	defer tmp.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return simerr.NewError(simerr.ErrCodeIoOpenFailed, "failed to create oracle-general output").
			WithComponent("convert").WithCause(err).WithDetail("path", outPath)
	}
	defer out.Close()

	var rec [trace.OracleGeneralItemSize]byte
	for i := total - 1; i >= 0; i-- {
		if _, err := tmp.ReadAt(rec[:], i*trace.OracleGeneralItemSize); err != nil {
			return simerr.NewError(simerr.ErrCodeInternalError, "failed to read conversion temp file").
				WithComponent("convert").WithCause(err)
		}

		req, nextFromEnd := decodeRecord(rec[:])
		if nextFromEnd >= 0 {
			req.NextAccessVtime = total - 1 - nextFromEnd
		} else {
			req.NextAccessVtime = request.NoNextAccess
		}

		trace.EncodeOracleGeneral(req, rec[:])
		if _, err := out.Write(rec[:]); err != nil {
			return simerr.NewError(simerr.ErrCodeInternalError, "failed to write oracle-general output").
				WithComponent("convert").WithCause(err)
		}
	}

	return nil
}

func encodeRecord(rec []byte, req request.Request, nextFromEnd int64) {
	binary.LittleEndian.PutUint32(rec[0:4], uint32(req.ClockTime))
	binary.LittleEndian.PutUint64(rec[4:12], req.ObjID)
	binary.LittleEndian.PutUint32(rec[12:16], uint32(req.ObjSize))
	binary.LittleEndian.PutUint64(rec[16:24], uint64(nextFromEnd))
}

func decodeRecord(rec []byte) (request.Request, int64) {
	var req request.Request
	req.ClockTime = float64(binary.LittleEndian.Uint32(rec[0:4]))
	req.ObjID = binary.LittleEndian.Uint64(rec[4:12])
	req.ObjSize = int64(binary.LittleEndian.Uint32(rec[12:16]))
	req.Valid = true
	nextFromEnd := int64(binary.LittleEndian.Uint64(rec[16:24]))
	return req, nextFromEnd
}
