package engine

// DefaultMaxFirings is the firing cap applied to each FireAll call.
const DefaultMaxFirings = 10000

// FiringQuota counts rule firings within one FireAll and enforces the cap.
//
// Refraction stops a (rule, tuple) pair from firing twice, but it cannot stop
// a chain in which every firing inserts a fresh fact that produces a fresh
// activation. The quota catches that case: once the cap is exceeded FireAll
// stops and reports RULE_CYCLE_EXCEEDED rather than looping forever.
type FiringQuota struct {
	max     int
	current int
}

// NewFiringQuota creates a quota with the given cap.
// A non-positive cap falls back to DefaultMaxFirings.
func NewFiringQuota(max int) *FiringQuota {
	if max <= 0 {
		max = DefaultMaxFirings
	}
	return &FiringQuota{max: max}
}

// Check counts one firing and fails when the count exceeds the cap.
// Call it before firing, with the rule about to fire.
func (q *FiringQuota) Check(sessionID, rule string) error {
	q.current++
	if q.current > q.max {
		return NewCycleError(sessionID, rule, q.current, q.max)
	}
	return nil
}

// Current returns the number of checks made so far.
func (q *FiringQuota) Current() int {
	return q.current
}

// Max returns the cap.
func (q *FiringQuota) Max() int {
	return q.max
}
