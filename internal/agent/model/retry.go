package model

// DefaultMaxAttempts is the per-field attempt cap.
const DefaultMaxAttempts = 3

// RetryState counts failed extraction attempts per slot. Counters only grow
// and never exceed the cap.
type RetryState struct {
	max    int
	counts map[Field]int
}

func NewRetryState(maxAttempts int) *RetryState {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryState{max: maxAttempts, counts: make(map[Field]int)}
}

// Fail records one failed attempt for f and returns the new count.
func (s *RetryState) Fail(f Field) int {
	if s.counts[f] < s.max {
		s.counts[f]++
	}
	return s.counts[f]
}

func (s *RetryState) Count(f Field) int {
	return s.counts[f]
}

// Exhausted reports whether f reached the cap.
func (s *RetryState) Exhausted(f Field) bool {
	return s.counts[f] >= s.max
}

func (s *RetryState) Max() int {
	return s.max
}

// Snapshot returns a copy of the counters.
func (s *RetryState) Snapshot() map[Field]int {
	out := make(map[Field]int, len(s.counts))
	for f, n := range s.counts {
		out[f] = n
	}
	return out
}
