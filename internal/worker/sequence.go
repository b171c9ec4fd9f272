package worker

import "sync/atomic"

// Sequencer hands out increasing sequence numbers and tells whether a
// response answers the most recently issued request. Callers that may have
// several requests in flight drop responses for which Latest is false.
type Sequencer struct {
	last atomic.Int64
}

// Next returns a new sequence number.
func (s *Sequencer) Next() int64 {
	return s.last.Add(1)
}

// Latest reports whether seq is the most recently issued number.
func (s *Sequencer) Latest(seq int64) bool {
	return s.last.Load() == seq
}

// Observe records a caller-chosen sequence number so that later calls to
// Next stay above it.
func (s *Sequencer) Observe(seq int64) {
	for {
		cur := s.last.Load()
		if seq <= cur || s.last.CompareAndSwap(cur, seq) {
			return
		}
	}
}
