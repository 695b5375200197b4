// Package lfu implements the frequency-node eviction policy from spec
// §4.G: a map from access frequency to a bucket of objects sharing that
// frequency, each bucket a doubly-linked list in promotion order.
package lfu

import "github.com/cachesim/cachesim/internal/cache"

// bucket is a doubly-linked list of objects sharing one frequency, using
// Object's intrusive Prev/Next links.
type bucket struct {
	head, tail *cache.Object
}

func (b *bucket) empty() bool { return b.head == nil }

func (b *bucket) pushBack(obj *cache.Object) {
	obj.Next = nil
	obj.Prev = b.tail
	if b.tail != nil {
		b.tail.Next = obj
	}
	b.tail = obj
	if b.head == nil {
		b.head = obj
	}
}

func (b *bucket) detach(obj *cache.Object) {
	if obj.Prev != nil {
		obj.Prev.Next = obj.Next
	} else {
		b.head = obj.Next
	}
	if obj.Next != nil {
		obj.Next.Prev = obj.Prev
	} else {
		b.tail = obj.Prev
	}
	obj.Prev, obj.Next = nil, nil
}

// nodeState is the per-object bookkeeping the frequency-node policy keeps
// in Object.PolicyState: which bucket currently owns the object.
type nodeState struct {
	freq int64
}

// Policy implements cache.Policy with frequency buckets (spec §4.G). The
// bucket for freq=1 is created at construction and is never deleted, per
// the spec's fast-path rule for the common insertion case.
type Policy struct {
	buckets map[int64]*bucket
	minFreq int64
	maxFreq int64
}

// New builds an empty frequency-node policy with bucket 1 pre-created.
func New() *Policy {
	p := &Policy{
		buckets: make(map[int64]*bucket),
		minFreq: 1,
		maxFreq: 1,
	}
	p.buckets[1] = &bucket{}
	return p
}

func (p *Policy) Name() string { return "lfu" }

func (p *Policy) OnInsert(obj *cache.Object) {
	obj.Freq = 1
	obj.PolicyState = &nodeState{freq: 1}
	p.buckets[1].pushBack(obj)
	p.minFreq = 1
	if p.maxFreq < 1 {
		p.maxFreq = 1
	}
}

func (p *Policy) OnAccess(obj *cache.Object) {
	state, _ := obj.PolicyState.(*nodeState)
	f := state.freq

	old := p.buckets[f]
	old.detach(obj)

	newFreq := f + 1
	nb, ok := p.buckets[newFreq]
	if !ok {
		nb = &bucket{}
		p.buckets[newFreq] = nb
	}
	nb.pushBack(obj)

	state.freq = newFreq
	obj.Freq = newFreq
	if newFreq > p.maxFreq {
		p.maxFreq = newFreq
	}

	if old.empty() && f == p.minFreq && f != 1 {
		delete(p.buckets, f)
		p.advanceMinFreq()
	}
}

func (p *Policy) OnEvict(obj *cache.Object) {
	state, _ := obj.PolicyState.(*nodeState)
	f := state.freq

	b := p.buckets[f]
	b.detach(obj)

	if b.empty() && f == p.minFreq && f != 1 {
		delete(p.buckets, f)
		p.advanceMinFreq()
	}
}

// PickVictim returns the head of the lowest resident frequency's bucket:
// the least recently promoted object at that frequency. Because bucket 1
// is kept in the map even when empty (never deleted) and min_freq is only
// advanced past a non-1 bucket, min_freq itself can trail behind the
// actual minimum between an access-driven promotion and the next insert;
// PickVictim scans forward from min_freq for the first non-empty bucket to
// compensate, without needing to mutate min_freq to do it.
func (p *Policy) PickVictim() *cache.Object {
	if b, ok := p.buckets[p.minFreq]; ok && !b.empty() {
		return b.head
	}
	for f := p.minFreq + 1; f <= p.maxFreq; f++ {
		if b, ok := p.buckets[f]; ok && !b.empty() {
			return b.head
		}
	}
	return nil
}

func (p *Policy) ToEvict() (*cache.Object, bool) {
	return p.PickVictim(), true
}

func (p *Policy) Free() {
	p.buckets = nil
}

// advanceMinFreq scans upward from the current min_freq for the next
// non-empty bucket, up to max_freq. If none is found, min_freq settles on
// 1 (an empty cache's resting state).
func (p *Policy) advanceMinFreq() {
	for f := p.minFreq + 1; f <= p.maxFreq; f++ {
		if b, ok := p.buckets[f]; ok && !b.empty() {
			p.minFreq = f
			return
		}
	}
	p.minFreq = 1
}
