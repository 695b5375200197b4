// Package lru implements the plain recency eviction policy: move-to-head on
// every access, evict the tail. It satisfies cache.Policy. The scaffolded
// policy's LRU decision heuristic is a separate function in that package and
// does not use this type.
package lru

import "github.com/cachesim/cachesim/internal/cache"

// Policy maintains resident objects in access-recency order; head is most
// recently used.
type Policy struct {
	head, tail *cache.Object
}

// New builds an empty LRU policy.
func New() *Policy {
	return &Policy{}
}

func (p *Policy) Name() string { return "lru" }

func (p *Policy) OnInsert(obj *cache.Object) {
	p.pushFront(obj)
}

func (p *Policy) OnAccess(obj *cache.Object) {
	p.detach(obj)
	p.pushFront(obj)
}

func (p *Policy) OnEvict(obj *cache.Object) {
	p.detach(obj)
}

func (p *Policy) PickVictim() *cache.Object {
	return p.tail
}

func (p *Policy) ToEvict() (*cache.Object, bool) {
	return p.tail, true
}

func (p *Policy) Free() {
	p.head, p.tail = nil, nil
}

func (p *Policy) pushFront(obj *cache.Object) {
	obj.Prev = nil
	obj.Next = p.head
	if p.head != nil {
		p.head.Prev = obj
	}
	p.head = obj
	if p.tail == nil {
		p.tail = obj
	}
}

func (p *Policy) detach(obj *cache.Object) {
	if obj.Prev != nil {
		obj.Prev.Next = obj.Next
	} else {
		p.head = obj.Next
	}
	if obj.Next != nil {
		obj.Next.Prev = obj.Prev
	} else {
		p.tail = obj.Prev
	}
	obj.Prev, obj.Next = nil, nil
}

// Head returns the most-recently-used object, or nil if empty.
func (p *Policy) Head() *cache.Object { return p.head }

// Tail returns the least-recently-used object, or nil if empty.
func (p *Policy) Tail() *cache.Object { return p.tail }
