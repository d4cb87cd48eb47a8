package ids

import "sync/atomic"

// Sequence is a monotonic logical clock for event ordering.
//
// Every mutation event is stamped with a strictly increasing value. Within a
// group the dispatcher already serializes mutations, so a group's events
// carry increasing stamps in the order members observe them; across groups
// the stamps only say which was applied first.
//
// Thread-safety: safe for concurrent use (atomic operations).
// The zero value is ready to use and starts at 0.
type Sequence struct {
	seq atomic.Int64
}

// NewSequenceAt creates a sequence whose next value is start+1.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
