package scaffolded

import (
	"errors"
	"testing"

	"github.com/cachesim/cachesim/internal/cache"
)

func insertObj(p *Policy, id uint64, size int64) *cache.Object {
	o := &cache.Object{ObjID: id, ObjSize: size}
	p.OnInsert(o)
	return o
}

func TestScaffolded_StatisticCardinalitiesMatchResidentCount(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	o1 := insertObj(p, 1, 10)
	insertObj(p, 2, 20)
	p.OnAccess(o1)
	insertObj(p, 3, 30)

	if p.counts.Len() != 3 || p.sizes.Len() != 3 || p.addedAt.Len() != 3 || len(p.metadata) != 3 {
		t.Fatalf("cardinalities = counts=%d sizes=%d addedAt=%d metadata=%d, want 3 each",
			p.counts.Len(), p.sizes.Len(), p.addedAt.Len(), len(p.metadata))
	}
}

func TestScaffolded_DefaultDecisionIsLRU(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	insertObj(p, 1, 1)
	insertObj(p, 2, 1)
	insertObj(p, 3, 1)

	victim := p.PickVictim()
	if victim == nil || victim.ObjID != 1 {
		t.Fatalf("victim = %v, want obj_id 1 (LRU tail)", victim)
	}
}

func TestScaffolded_OnEvictPushesHistoryAndRemovesStats(t *testing.T) {
	t.Parallel()

	p := New(Config{HistorySize: 2})
	o1 := insertObj(p, 1, 5)
	insertObj(p, 2, 5)

	p.OnEvict(o1)

	if p.counts.Len() != 1 || p.sizes.Len() != 1 || p.addedAt.Len() != 1 {
		t.Errorf("cardinalities after evict = counts=%d sizes=%d addedAt=%d, want 1 each",
			p.counts.Len(), p.sizes.Len(), p.addedAt.Len())
	}
	if _, resident := p.metadata[1]; resident {
		t.Error("evicted object should be removed from metadata map")
	}
	records := p.history.Records()
	if len(records) != 1 || records[0].ObjID != 1 {
		t.Errorf("history = %v, want one record for obj_id 1", records)
	}
}

func TestScaffolded_PanickingDecisionFunctionIsContained(t *testing.T) {
	t.Parallel()

	p := New(Config{Decision: func(DecisionContext) (*cache.Object, error) {
		panic("external decision function exploded")
	}})
	insertObj(p, 1, 1)

	victim := p.PickVictim()
	if victim != nil {
		t.Errorf("PickVictim() = %v after panicking decision, want nil", victim)
	}
}

func TestScaffolded_DecisionFunctionError(t *testing.T) {
	t.Parallel()

	p := New(Config{Decision: func(DecisionContext) (*cache.Object, error) {
		return nil, errors.New("no opinion")
	}})
	insertObj(p, 1, 1)

	if v := p.PickVictim(); v != nil {
		t.Errorf("PickVictim() = %v, want nil on decision error", v)
	}
}

func TestScaffolded_FIFODecision(t *testing.T) {
	t.Parallel()

	p := New(Config{Decision: FIFODecision})
	o1 := insertObj(p, 1, 1)
	insertObj(p, 2, 1)
	insertObj(p, 3, 1)

	// Access obj 1 to move it to the head without changing its
	// addition_vtime; FIFO should still pick the oldest addition, not the
	// least recently accessed.
	p.OnAccess(o1)

	victim := p.PickVictim()
	if victim == nil || victim.ObjID != 1 {
		t.Fatalf("FIFO victim = %v, want obj_id 1 (oldest addition)", victim)
	}
}

func TestScaffolded_LFUDecision(t *testing.T) {
	t.Parallel()

	p := New(Config{Decision: LFUDecision})
	o1 := insertObj(p, 1, 1)
	insertObj(p, 2, 1)
	insertObj(p, 3, 1)
	p.OnAccess(o1)
	p.OnAccess(o1)

	victim := p.PickVictim()
	if victim == nil || victim.ObjID == 1 {
		t.Fatalf("LFU victim = %v, should not be obj_id 1 (highest count)", victim)
	}
}

func TestScaffolded_DeltaWindowBounded(t *testing.T) {
	t.Parallel()

	p := New(Config{DeltaWindowSize: 2})
	o := insertObj(p, 1, 1)
	for i := 0; i < 5; i++ {
		p.OnAccess(o)
	}

	md, _ := o.PolicyState.(*Metadata)
	if md == nil || len(md.Deltas) != 2 {
		t.Fatalf("Deltas length = %v, want 2", md)
	}
}

func TestScaffolded_ToEvictDoesNotMutate(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	insertObj(p, 1, 1)
	insertObj(p, 2, 1)

	before := len(p.metadata)
	victim, ok := p.ToEvict()
	if !ok || victim == nil {
		t.Fatalf("ToEvict() = %v, %v", victim, ok)
	}
	if len(p.metadata) != before {
		t.Error("ToEvict must not mutate metadata")
	}
}
