package rules

import "sync/atomic"

// Source hands out the current RuleSet to in-flight triage runs. Reloads
// validate a complete replacement off to the side and swap it in atomically;
// a RuleSet is never mutated after it has been published.
type Source struct {
	p atomic.Pointer[RuleSet]
}

// NewSource creates a Source serving rs.
func NewSource(rs *RuleSet) *Source {
	s := &Source{}
	s.p.Store(rs)
	return s
}

// Current returns the RuleSet in effect. Callers hold the returned pointer
// for the duration of one triage decision.
func (s *Source) Current() *RuleSet {
	return s.p.Load()
}

// Swap publishes a new RuleSet. Runs already holding the previous one are
// unaffected.
func (s *Source) Swap(rs *RuleSet) {
	s.p.Store(rs)
}
