// Package scaffolded implements the "Evolve-complete" eviction policy from
// spec §4.H: an intrusive recency queue plus rich statistical side-
// structures (order-statistics multisets, an age view, an eviction
// history), with the actual victim choice delegated to an externally
// supplied decision function over a bounded candidate window.
package scaffolded

import (
	"fmt"

	"github.com/cachesim/cachesim/internal/cache"
)

// DefaultDeltaWindowSize is K from spec §4.H: the bounded FIFO of recent
// inter-access deltas kept per object.
const DefaultDeltaWindowSize = 20

// DefaultHistorySize is H from spec §4.H.
const DefaultHistorySize = 100

// DefaultCandidateWindow is the default size of the tail window of
// resident objects passed to the decision function.
const DefaultCandidateWindow = 100

// Metadata is the per-object bookkeeping the scaffolded policy keeps in
// Object.PolicyState (spec §4.H).
type Metadata struct {
	Count           int64
	LastAccessVtime int64
	Size            int64
	AdditionVtime   int64
	Deltas          []int64 // bounded FIFO, capacity K
}

// Node is one candidate in the decision function's window view: a
// read-only projection of a resident object plus its queue neighbors,
// traversable via Next/Prev (spec §6).
type Node struct {
	obj *cache.Object
}

func (n Node) ID() uint64 { return n.obj.ObjID }
func (n Node) Count() int64 {
	md, _ := n.obj.PolicyState.(*Metadata)
	if md == nil {
		return 0
	}
	return md.Count
}
func (n Node) Size() int64            { return n.obj.ObjSize }
func (n Node) AddedAt() int64         { return n.obj.AdditionVtime }
func (n Node) LastAccess() int64      { return n.obj.LastAccessVtime }
func (n Node) Next() (Node, bool)     { return wrap(n.obj.Next) }
func (n Node) Prev() (Node, bool)     { return wrap(n.obj.Prev) }
func (n Node) valid() bool            { return n.obj != nil }

func wrap(obj *cache.Object) (Node, bool) {
	if obj == nil {
		return Node{}, false
	}
	return Node{obj: obj}, true
}

// StatisticView exposes percentile(p) in O(log n) over a read-only
// multiset (spec §6).
type StatisticView interface {
	Percentile(p float64) int64
	Len() int
}

// DecisionContext bundles everything an externally supplied decision
// function may read (spec §6): the candidate window's bounds, the three
// order-statistics views, the age view, the eviction history, and the
// current virtual time. The function must not mutate anything reachable
// from it.
type DecisionContext struct {
	Head, Tail   Node
	CurrentVtime int64
	Counts       StatisticView
	Sizes        StatisticView
	AddedAt      StatisticView
	Ages         *AgeView
	History      *History
}

// DecisionFunc chooses a victim among the candidate window. It must return
// a resident object; the policy re-validates residency before eviction and
// treats any other outcome as a fatal invariant violation.
type DecisionFunc func(ctx DecisionContext) (obj *cache.Object, err error)

// LRUDecision picks the tail of the window (the least recently used
// candidate) — the scaffolded policy's default, shipped decision.
func LRUDecision(ctx DecisionContext) (*cache.Object, error) {
	if !ctx.Tail.valid() {
		return nil, fmt.Errorf("empty candidate window")
	}
	return ctx.Tail.obj, nil
}

// FIFODecision picks the candidate with the oldest addition_vtime in the
// window.
func FIFODecision(ctx DecisionContext) (*cache.Object, error) {
	if !ctx.Tail.valid() {
		return nil, fmt.Errorf("empty candidate window")
	}
	best := ctx.Head
	for n, ok := ctx.Head, true; ok; n, ok = n.Next() {
		if n.AddedAt() < best.AddedAt() {
			best = n
		}
		if n.obj == ctx.Tail.obj {
			break
		}
	}
	return best.obj, nil
}

// LFUDecision picks the candidate with the smallest access count in the
// window.
func LFUDecision(ctx DecisionContext) (*cache.Object, error) {
	if !ctx.Tail.valid() {
		return nil, fmt.Errorf("empty candidate window")
	}
	best := ctx.Head
	for n, ok := ctx.Head, true; ok; n, ok = n.Next() {
		if n.Count() < best.Count() {
			best = n
		}
		if n.obj == ctx.Tail.obj {
			break
		}
	}
	return best.obj, nil
}

// Config configures a scaffolded policy instance.
type Config struct {
	DeltaWindowSize int // K
	HistorySize     int // H
	CandidateWindow int
	Decision        DecisionFunc
}

// Policy implements cache.Policy, delegating PickVictim to an externally
// supplied (or default) DecisionFunc (spec §4.H).
type Policy struct {
	config Config

	queueHead, queueTail *cache.Object
	metadata             map[uint64]*Metadata

	counts    *Multiset
	addedAt   *Multiset
	sizes     *Multiset
	ages      *AgeView
	history   *History
	vtime     int64
}

// New builds a scaffolded policy. A nil or zero-valued Config is filled
// with spec defaults (K=20, H=100, candidate window=100, decision=LRU).
func New(config Config) *Policy {
	if config.DeltaWindowSize <= 0 {
		config.DeltaWindowSize = DefaultDeltaWindowSize
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}
	if config.CandidateWindow <= 0 {
		config.CandidateWindow = DefaultCandidateWindow
	}
	if config.Decision == nil {
		config.Decision = LRUDecision
	}

	p := &Policy{
		config:   config,
		metadata: make(map[uint64]*Metadata),
		counts:   NewMultiset(),
		addedAt:  NewMultiset(),
		sizes:    NewMultiset(),
		history:  NewHistory(config.HistorySize),
	}
	p.ages = NewAgeView(p.addedAt, func() int64 { return p.vtime })
	return p
}

func (p *Policy) Name() string { return "scaffolded" }

func (p *Policy) OnInsert(obj *cache.Object) {
	p.vtime++

	md := &Metadata{
		Count:           1,
		LastAccessVtime: p.vtime,
		Size:            obj.ObjSize,
		AdditionVtime:   p.vtime,
	}
	p.metadata[obj.ObjID] = md
	obj.PolicyState = md
	obj.AdditionVtime = p.vtime
	obj.LastAccessVtime = p.vtime

	p.counts.Insert(1)
	p.addedAt.Insert(p.vtime)
	p.sizes.Insert(obj.ObjSize)

	p.pushFront(obj)
}

func (p *Policy) OnAccess(obj *cache.Object) {
	p.vtime++

	md, _ := obj.PolicyState.(*Metadata)
	if md == nil {
		return
	}

	p.counts.RemoveOne(md.Count)
	md.Count++
	p.counts.Insert(md.Count)

	delta := p.vtime - md.LastAccessVtime
	md.Deltas = append(md.Deltas, delta)
	if len(md.Deltas) > p.config.DeltaWindowSize {
		md.Deltas = md.Deltas[len(md.Deltas)-p.config.DeltaWindowSize:]
	}
	md.LastAccessVtime = p.vtime
	obj.LastAccessVtime = p.vtime
	obj.Freq = md.Count

	p.detach(obj)
	p.pushFront(obj)
}

func (p *Policy) OnEvict(obj *cache.Object) {
	md, _ := obj.PolicyState.(*Metadata)
	if md != nil {
		p.history.Push(EvictedRecord{
			ObjID:           obj.ObjID,
			Count:           md.Count,
			Size:            md.Size,
			AdditionVtime:   md.AdditionVtime,
			LastAccessVtime: md.LastAccessVtime,
		})
		p.counts.RemoveOne(md.Count)
		p.addedAt.RemoveOne(md.AdditionVtime)
		p.sizes.RemoveOne(md.Size)
		delete(p.metadata, obj.ObjID)
	}
	p.detach(obj)
}

// PickVictim builds the candidate window (the tail CandidateWindow objects
// of the recency queue) and invokes the configured decision function. The
// function is invoked with a recover() guard: a panicking externally
// supplied decision function must not bring down the whole simulator, but
// it still cannot produce a victim, so PickVictim returns nil and lets the
// shell classify the failure as an invariant violation.
func (p *Policy) PickVictim() *cache.Object {
	head, tail := p.candidateWindow()
	if !tail.valid() {
		return nil
	}

	victim, ok := p.invokeDecision(head, tail)
	if !ok {
		return nil
	}

	// The decision function may only read; re-validate residency here
	// before the shell proceeds to evict, per spec §4.H's scaffolding
	// guarantee.
	if _, resident := p.metadata[victim.ObjID]; !resident {
		return nil
	}
	return victim
}

func (p *Policy) invokeDecision(head, tail Node) (obj *cache.Object, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			obj, ok = nil, false
		}
	}()

	ctx := DecisionContext{
		Head:         head,
		Tail:         tail,
		CurrentVtime: p.vtime,
		Counts:       p.counts,
		Sizes:        p.sizes,
		AddedAt:      p.addedAt,
		Ages:         p.ages,
		History:      p.history,
	}
	result, err := p.config.Decision(ctx)
	if err != nil || result == nil {
		return nil, false
	}
	return result, true
}

// candidateWindow returns the head/tail of the last CandidateWindow
// objects in recency order (tail-most window), or (zero,zero) if empty.
func (p *Policy) candidateWindow() (head, tail Node) {
	if p.queueTail == nil {
		return Node{}, Node{}
	}

	tailNode := p.queueTail
	headNode := tailNode
	for i := 1; i < p.config.CandidateWindow && headNode.Prev != nil; i++ {
		headNode = headNode.Prev
	}
	return Node{obj: headNode}, Node{obj: tailNode}
}

func (p *Policy) ToEvict() (*cache.Object, bool) {
	return p.PickVictim(), true
}

func (p *Policy) Free() {
	p.metadata = nil
	p.queueHead, p.queueTail = nil, nil
}

func (p *Policy) pushFront(obj *cache.Object) {
	obj.Prev = nil
	obj.Next = p.queueHead
	if p.queueHead != nil {
		p.queueHead.Prev = obj
	}
	p.queueHead = obj
	if p.queueTail == nil {
		p.queueTail = obj
	}
}

func (p *Policy) detach(obj *cache.Object) {
	if obj.Prev != nil {
		obj.Prev.Next = obj.Next
	} else {
		p.queueHead = obj.Next
	}
	if obj.Next != nil {
		obj.Next.Prev = obj.Prev
	} else {
		p.queueTail = obj.Prev
	}
	obj.Prev, obj.Next = nil, nil
}
