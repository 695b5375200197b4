package scaffolded

// AgeView lazily reports resident-object ages as current_vtime minus
// addition_vtime, inverting the percentile direction of the underlying
// addition_vtimes multiset so that "the p-th percentile age" means "the
// p-th percentile most-recently-added object's age" (spec §4.H): the most
// recently added objects (highest addition_vtime, lowest age) are the
// low-percentile end of the age view even though they're the high-
// percentile end of the addition_vtimes multiset.
type AgeView struct {
	additionVtimes *Multiset
	currentVtime   func() int64
}

// NewAgeView builds an age view backed by additionVtimes, using
// currentVtime to compute each query's reference point.
func NewAgeView(additionVtimes *Multiset, currentVtime func() int64) *AgeView {
	return &AgeView{additionVtimes: additionVtimes, currentVtime: currentVtime}
}

// Percentile returns the age (in virtual-time units) at the p-th
// percentile of recency.
func (a *AgeView) Percentile(p float64) int64 {
	return a.currentVtime() - a.additionVtimes.Percentile(1-p)
}

// Len reports the resident-object count backing this view.
func (a *AgeView) Len() int { return a.additionVtimes.Len() }
