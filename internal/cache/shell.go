package cache

import (
	"fmt"
	"strings"

	"github.com/cachesim/cachesim/internal/admission"
	"github.com/cachesim/cachesim/internal/logging"
	"github.com/cachesim/cachesim/internal/metrics"
	"github.com/cachesim/cachesim/internal/request"
	simerr "github.com/cachesim/cachesim/pkg/errors"
)

// Config configures a Shell (spec §4.E capacity accounting).
type Config struct {
	Capacity              int64
	PerObjectMetadataSize int64
	ConsiderObjMetadata   bool
}

// Shell is the public cache contract, identical for every policy (spec
// §4.E). It owns capacity accounting, the hash index, and virtual time; it
// delegates all eviction-order decisions to the attached Policy.
type Shell struct {
	config    Config
	index     *Index
	policy    Policy
	admission admission.Admission
	collector *metrics.Collector
	logger    *logging.Logger

	occupiedBytes int64
	nReq          int64
}

// NewShell constructs a cache shell. collector and logger may be nil.
func NewShell(config Config, policy Policy, adm admission.Admission, collector *metrics.Collector, logger *logging.Logger) *Shell {
	if adm == nil {
		adm = admission.AlwaysAdmit{}
	}
	return &Shell{
		config:    config,
		index:     NewIndex(),
		policy:    policy,
		admission: adm,
		collector: collector,
		logger:    logger,
	}
}

// perObjectCost returns the accounting weight of obj_size, including the
// per-object metadata overhead only when ConsiderObjMetadata is set.
func (s *Shell) perObjectCost(objSize int64) int64 {
	if s.config.ConsiderObjMetadata {
		return objSize + s.config.PerObjectMetadataSize
	}
	return objSize
}

// NResident reports the resident-object count (invariant I3).
func (s *Shell) NResident() int { return s.index.Len() }

// OccupiedBytes reports current occupancy (invariant I1).
func (s *Shell) OccupiedBytes() int64 { return s.occupiedBytes }

// NReq reports the shell's virtual-time counter.
func (s *Shell) NReq() int64 { return s.nReq }

// PolicyName reports the attached policy's name.
func (s *Shell) PolicyName() string { return s.policy.Name() }

// Get is the cache's main entry point (spec §4.E). It returns true on a
// hit, false on a miss, and an error only for a fatal condition
// (ObjectTooLarge is returned as an ordinary miss, per spec §7).
func (s *Shell) Get(req *request.Request) (hit bool, err error) {
	s.nReq++

	obj, found := s.index.FindByID(req.ObjID)
	if found {
		obj.LastAccessVtime = s.nReq
		s.policy.OnAccess(obj)
		s.admission.Update(req, s.occupiedBytes)
		s.recordResult(true)
		return true, nil
	}

	if !s.admission.Admit(req) {
		s.admission.Update(req, s.occupiedBytes)
		s.recordResult(false)
		return false, nil
	}

	if err := s.makeRoomFor(s.perObjectCost(req.ObjSize)); err != nil {
		if simerr.IsObjectTooLarge(err) {
			s.admission.Update(req, s.occupiedBytes)
			s.recordResult(false)
			return false, nil
		}
		return false, err
	}

	if err := s.Insert(req); err != nil {
		return false, err
	}
	s.admission.Update(req, s.occupiedBytes)
	s.recordResult(false)
	return false, nil
}

func (s *Shell) recordResult(hit bool) {
	if s.collector == nil {
		return
	}
	if hit {
		s.collector.RecordHit("default")
	} else {
		s.collector.RecordMiss("default")
	}
	s.collector.SetOccupiedBytes(s.occupiedBytes)
}

// Find is a hash-index lookup, optionally invoking the policy's OnAccess
// hook on a hit (spec §4.E).
func (s *Shell) Find(req *request.Request, update bool) (*Object, bool) {
	obj, found := s.index.FindByID(req.ObjID)
	if !found {
		return nil, false
	}
	if update {
		obj.LastAccessVtime = s.nReq
		s.policy.OnAccess(obj)
	}
	return obj, true
}

// Insert creates a resident object for req, assuming the caller has already
// ensured enough free space (spec §4.E precondition).
func (s *Shell) Insert(req *request.Request) error {
	obj := &Object{
		ObjID:           req.ObjID,
		ObjSize:         req.ObjSize,
		Freq:            1,
		AdditionVtime:   s.nReq,
		LastAccessVtime: s.nReq,
	}
	s.index.Insert(obj)
	s.occupiedBytes += s.perObjectCost(obj.ObjSize)
	s.policy.OnInsert(obj)
	return nil
}

// Evict calls the policy's PickVictim, invokes its OnEvict hook, and
// unlinks the victim from the hash index. It may be called repeatedly by
// makeRoomFor.
func (s *Shell) Evict() error {
	victim := s.policy.PickVictim()
	if victim == nil {
		return simerr.NewError(simerr.ErrCodeInvariantViolation, "pick_victim returned nil on a non-empty cache").
			WithComponent("cache").WithOperation("Evict")
	}

	s.policy.OnEvict(victim)

	if _, ok := s.index.Remove(victim.ObjID); !ok {
		return simerr.NewError(simerr.ErrCodeInvariantViolation, "evicted object was not resident").
			WithComponent("cache").WithOperation("Evict").WithDetail("obj_id", victim.ObjID)
	}

	s.occupiedBytes -= s.perObjectCost(victim.ObjSize)
	if s.collector != nil {
		s.collector.RecordEviction("capacity")
	}
	return nil
}

// makeRoomFor loops calling Evict until enough space is free, failing with
// ObjectTooLarge once the cache is empty and still cannot fit n (spec
// §4.E).
func (s *Shell) makeRoomFor(n int64) error {
	for s.occupiedBytes+n > s.config.Capacity {
		if s.index.Len() == 0 {
			return simerr.NewError(simerr.ErrCodeObjectTooLarge, "request larger than cache capacity").
				WithComponent("cache").WithOperation("makeRoomFor").
				WithDetail("needed", n).WithDetail("capacity", s.config.Capacity)
		}
		if err := s.Evict(); err != nil {
			return err
		}
	}
	return nil
}

// Remove is user-initiated removal; it must not go through the eviction
// path, so the policy's eviction-only bookkeeping (e.g. the scaffolded
// policy's History) is not polluted (spec §4.E).
func (s *Shell) Remove(objID uint64) bool {
	obj, ok := s.index.Remove(objID)
	if !ok {
		return false
	}
	s.occupiedBytes -= s.perObjectCost(obj.ObjSize)
	return true
}

// ToEvict previews the next victim without mutating any state (spec §4.E).
func (s *Shell) ToEvict(req *request.Request) (*Object, error) {
	obj, ok := s.policy.ToEvict()
	if !ok {
		return nil, simerr.NewError(simerr.ErrCodeUnsupportedOperation, "policy cannot preview eviction without mutating state").
			WithComponent("cache").WithOperation("ToEvict").WithDetail("policy", s.policy.Name())
	}
	return obj, nil
}

// AssertInvariants checks I1 from spec §8 (occupied_bytes does not exceed
// capacity) and that occupied_bytes equals the sum of resident
// size_with_md. It does not check I2 or the queue-length part of
// I3, since the shell has no view of the policy's bookkeeping; its resident
// count is the hash index length itself, so the second comparison below
// always holds. Intended for internal/driver's optional debug
// invariant-checking pass, not for the hot path.
func (s *Shell) AssertInvariants() error {
	var sum int64
	s.index.Each(func(obj *Object) {
		sum += s.perObjectCost(obj.ObjSize)
	})
	if sum != s.occupiedBytes {
		return simerr.NewError(simerr.ErrCodeInvariantViolation, "occupied_bytes does not match sum of resident sizes").
			WithComponent("cache").WithOperation("AssertInvariants").
			WithDetail("occupied_bytes", s.occupiedBytes).WithDetail("sum", sum)
	}
	if s.occupiedBytes > s.config.Capacity {
		return simerr.NewError(simerr.ErrCodeInvariantViolation, "occupied_bytes exceeds capacity").
			WithComponent("cache").WithOperation("AssertInvariants").
			WithDetail("occupied_bytes", s.occupiedBytes).WithDetail("capacity", s.config.Capacity)
	}
	if s.index.Len() != s.NResident() {
		return simerr.NewError(simerr.ErrCodeInvariantViolation, "resident_count does not match hash index length").
			WithComponent("cache").WithOperation("AssertInvariants")
	}
	return nil
}

// PrintCache dumps the resident objects for debugging (spec §4.E). It walks
// the hash index, not the policy's queue, so objects are listed in
// unspecified order rather than queue order.
func (s *Shell) PrintCache() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s cache: %d resident, %d/%d bytes\n", s.policy.Name(), s.index.Len(), s.occupiedBytes, s.config.Capacity)
	s.index.Each(func(obj *Object) {
		fmt.Fprintf(&b, "  obj_id=%d size=%d freq=%d added=%d last=%d\n",
			obj.ObjID, obj.ObjSize, obj.Freq, obj.AdditionVtime, obj.LastAccessVtime)
	})
	return b.String()
}

// Close tears down policy state before the shell itself is discarded,
// resolving the "EvolveComplete_free leak" open question from spec §9: the
// policy's Free hook always runs, so policy-owned resources are released
// deterministically rather than left for a garbage collector that may never
// run in a short-lived simulator process.
func (s *Shell) Close() {
	s.policy.Free()
	s.admission.Free()
}
