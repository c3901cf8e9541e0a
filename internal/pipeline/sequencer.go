package pipeline

import (
	"slices"
	"sync"
)

const defaultMaxHeld = 16

type heldResult struct {
	text string
	ok   bool
}

// sequencer hands Layer 1 results to release in chunk order. A result waits
// only for lower sequence numbers that have not resolved yet; a failed chunk
// resolves its slot without text. After close every result is released
// immediately and flagged late.
type sequencer struct {
	mu      sync.Mutex
	ordered bool
	next    int64
	held    map[int64]heldResult
	maxHeld int
	closed  bool
	release func(text string, late bool)
}

func newSequencer(ordered bool, release func(text string, late bool)) *sequencer {
	return &sequencer{
		ordered: ordered,
		held:    make(map[int64]heldResult),
		maxHeld: defaultMaxHeld,
		release: release,
	}
}

func (s *sequencer) resolve(seq int64, text string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		if ok {
			s.release(text, true)
		}
		return
	}
	if !s.ordered || seq < s.next {
		if ok {
			s.release(text, false)
		}
		return
	}

	s.held[seq] = heldResult{text: text, ok: ok}
	s.drainLocked()
	// A sequence number that never resolves must not stall the rest.
	for len(s.held) > s.maxHeld {
		s.next = slices.Min(s.heldKeysLocked())
		s.drainLocked()
	}
}

// close releases everything still held, in order.
func (s *sequencer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	keys := s.heldKeysLocked()
	slices.Sort(keys)
	for _, k := range keys {
		if r := s.held[k]; r.ok {
			s.release(r.text, false)
		}
	}
	clear(s.held)
}

func (s *sequencer) drainLocked() {
	for {
		r, ok := s.held[s.next]
		if !ok {
			return
		}
		delete(s.held, s.next)
		s.next++
		if r.ok {
			s.release(r.text, false)
		}
	}
}

func (s *sequencer) heldKeysLocked() []int64 {
	keys := make([]int64, 0, len(s.held))
	for k := range s.held {
		keys = append(keys, k)
	}
	return keys
}
