package scaffolded

import "sort"

// Multiset is an order-statistics multiset over int64 values: insert,
// remove-one-occurrence, and percentile lookup (spec §4.H, §9 "Order-
// statistics multiset"). It is backed by a sorted slice rather than a
// balanced tree: see DESIGN.md for why — no library in the reference
// corpus offers order statistics, and a slice keeps Insert/RemoveOne/
// Percentile's behavior easy to get right, at the cost of O(n) insert
// instead of the spec's O(log n) (Percentile itself is a constant-time
// index into the sorted slice).
type Multiset struct {
	values []int64
}

// NewMultiset builds an empty multiset.
func NewMultiset() *Multiset {
	return &Multiset{}
}

// Insert adds v, keeping values sorted.
func (m *Multiset) Insert(v int64) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] >= v })
	m.values = append(m.values, 0)
	copy(m.values[i+1:], m.values[i:])
	m.values[i] = v
}

// RemoveOne removes a single occurrence of v, if present.
func (m *Multiset) RemoveOne(v int64) {
	i := sort.Search(len(m.values), func(i int) bool { return m.values[i] >= v })
	if i < len(m.values) && m.values[i] == v {
		m.values = append(m.values[:i], m.values[i+1:]...)
	}
}

// Percentile returns the value at fraction p in [0,1] of the sorted
// values, in constant time (the slice is already sorted, so no search is
// needed, only index arithmetic). Returns 0 if empty.
func (m *Multiset) Percentile(p float64) int64 {
	if len(m.values) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	idx := int(p * float64(len(m.values)-1))
	return m.values[idx]
}

// Len reports the multiset's cardinality.
func (m *Multiset) Len() int { return len(m.values) }
