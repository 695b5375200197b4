package lfu

import (
	"testing"

	"github.com/cachesim/cachesim/internal/cache"
)

func TestLFU_VictimAtMinFrequency(t *testing.T) {
	t.Parallel()

	p := New()
	objs := map[uint64]*cache.Object{}
	insert := func(id uint64) *cache.Object {
		o := &cache.Object{ObjID: id, ObjSize: 1}
		objs[id] = o
		p.OnInsert(o)
		return o
	}
	access := func(id uint64) {
		p.OnAccess(objs[id])
	}

	insert(1)
	access(1)
	insert(2)
	access(2)
	insert(3)
	access(3)

	victim := p.PickVictim()
	if victim == nil || victim.ObjID != 1 {
		t.Fatalf("victim = %v, want obj_id 1", victim)
	}
	p.OnEvict(victim)
	delete(objs, 1)

	insert(4)

	resident := map[uint64]bool{2: true, 3: true, 4: true}
	for id := range objs {
		if !resident[id] {
			t.Errorf("unexpected resident obj_id %d", id)
		}
	}
	if len(objs) != 3 {
		t.Errorf("resident count = %d, want 3", len(objs))
	}
}

func TestLFU_Bucket1NeverDeleted(t *testing.T) {
	t.Parallel()

	p := New()
	o := &cache.Object{ObjID: 1}
	p.OnInsert(o)
	p.OnAccess(o) // promotes to freq 2, bucket 1 becomes empty

	if _, ok := p.buckets[1]; !ok {
		t.Error("bucket 1 must remain in the map even when empty")
	}
}

func TestLFU_ResetsMinFreqOnInsertToEmptyBucket1(t *testing.T) {
	t.Parallel()

	p := New()
	o1 := &cache.Object{ObjID: 1}
	p.OnInsert(o1)
	p.OnAccess(o1) // bucket 1 now empty, object at freq 2

	o2 := &cache.Object{ObjID: 2}
	p.OnInsert(o2) // bucket 1 non-empty again

	victim := p.PickVictim()
	if victim == nil || victim.ObjID != 2 {
		t.Fatalf("victim = %v, want obj_id 2 (the only freq-1 resident)", victim)
	}
}
