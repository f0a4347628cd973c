package traversal

import (
	"sync"
	"sync/atomic"
)

// VisitedSet records URLs already entered by one traversal. It is safe for
// concurrent use.
type VisitedSet struct {
	seen sync.Map
	n    atomic.Int64
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{}
}

// Add stores the URL if it has not been seen before and returns true.
func (v *VisitedSet) Add(url string) bool {
	if url == "" {
		return false
	}
	if _, loaded := v.seen.LoadOrStore(url, struct{}{}); loaded {
		return false
	}
	v.n.Add(1)
	return true
}

// Has reports whether url was added.
func (v *VisitedSet) Has(url string) bool {
	_, ok := v.seen.Load(url)
	return ok
}

// Len returns the number of distinct URLs added.
func (v *VisitedSet) Len() int {
	return int(v.n.Load())
}
