// Package sampler implements the spatial object sampler from spec §4.C: a
// deterministic hash-based filter on obj_id that keeps a fixed fraction of
// distinct objects, not requests, so every request for a kept object passes
// through and every request for a dropped object does not.
package sampler

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/cachesim/cachesim/internal/request"
)

// Sampler filters requests by obj_id.
type Sampler interface {
	// Sample reports whether req should be kept.
	Sample(req *request.Request) bool
	// Clone produces an independent sampler with identical keep/drop
	// behavior, for use by a cloned trace reader.
	Clone() Sampler
}

// Spatial keeps a deterministic fraction of the obj_id hash range. The same
// obj_id always hashes the same way, so two runs over the same trace (or a
// reader and its clone) agree on every decision without coordination.
type Spatial struct {
	ratio     float64
	threshold uint64
}

// NewSpatial builds a spatial sampler that keeps objects whose hash falls in
// the lower ratio fraction of the 64-bit hash range. ratio must be in [0,1];
// values outside that range are clamped.
func NewSpatial(ratio float64) *Spatial {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return &Spatial{
		ratio:     ratio,
		threshold: uint64(ratio * float64(^uint64(0))),
	}
}

// Sample hashes req.ObjID and compares it against the sampler's threshold.
func (s *Spatial) Sample(req *request.Request) bool {
	if s.ratio >= 1 {
		return true
	}
	if s.ratio <= 0 {
		return false
	}
	return hashObjID(req.ObjID) <= s.threshold
}

// Clone returns a sampler with the same ratio; Spatial carries no mutable
// state so this is equivalent to constructing a new one with the same ratio.
func (s *Spatial) Clone() Sampler {
	return &Spatial{ratio: s.ratio, threshold: s.threshold}
}

func hashObjID(id uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	return xxhash.Sum64(buf[:])
}

// HashString maps a non-numeric object identifier (as read from a text
// trace column whose obj_id_is_num flag is false, spec §4.B/§6) onto the
// uint64 obj_id space the rest of the pipeline operates on. Using the same
// hash the sampler itself uses keeps one hash family across the codebase
// rather than introducing a second one just for string object IDs.
func HashString(id string) uint64 {
	return xxhash.Sum64String(id)
}
