// Package conversation follows a core instance's conversation stream:
// it polls state snapshots, dispatches newly-visible messages exactly
// once per turn, and resolves approval requests through a policy.
package conversation

import "sync"

// Coordinator tracks which turn of the conversation is current, which
// message keys have been handled this turn, and whether operator input
// is currently solicitable. It is pure in-memory state shared by the
// polling loops of one session; it performs no I/O.
type Coordinator struct {
	mu           sync.Mutex
	turnStart    int
	inputAllowed bool
	processed    genSet
}

// NewCoordinator returns an empty Coordinator with the turn starting
// at index zero.
func NewCoordinator() *Coordinator {
	return &Coordinator{processed: newGenSet(0)}
}

// TurnStart returns the index the current turn began at.
func (c *Coordinator) TurnStart() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnStart
}

// SetTurnStart moves the turn boundary without evicting processed
// keys. Used once, after history replay, to skip everything already
// shown.
func (c *Coordinator) SetTurnStart(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnStart = index
	c.processed.setGeneration(index)
}

// MarkProcessed records a message key as handled in the current turn.
func (c *Coordinator) MarkProcessed(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed.add(key)
}

// IsProcessed reports whether the key was already handled in the
// current turn. Keys marked under a previous turn never match: each
// entry is tagged with the turn-start generation it was recorded
// under.
func (c *Coordinator) IsProcessed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed.has(key)
}

// CompleteTurn atomically advances the turn boundary to newIndex and
// evicts every key recorded under any other generation. This is the
// only garbage collection the processed set gets; the processor calls
// it whenever it dispatches a message, which bounds the set to one
// turn's worth of keys.
func (c *Coordinator) CompleteTurn(newIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnStart = newIndex
	c.processed.completeTurn(newIndex)
}

// ProcessedLen returns the number of keys currently held, across all
// generations. Exposed for tests and introspection.
func (c *Coordinator) ProcessedLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed.len()
}

// SetInputAllowed toggles whether the operator prompt is active. The
// flag exists for presentation coordination only; it carries no
// correctness obligation.
func (c *Coordinator) SetInputAllowed(allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputAllowed = allowed
}

// InputAllowed reports whether the operator prompt is active.
func (c *Coordinator) InputAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputAllowed
}

// genSet is a generation-tagged string set. Each entry belongs to the
// generation (turn-start index) that was current when it was added;
// completing a turn keeps only the surviving generation's bucket.
type genSet struct {
	gen     int
	buckets map[int]map[string]struct{}
}

func newGenSet(gen int) genSet {
	return genSet{gen: gen, buckets: make(map[int]map[string]struct{})}
}

func (s *genSet) setGeneration(gen int) {
	s.gen = gen
}

func (s *genSet) add(key string) {
	bucket, ok := s.buckets[s.gen]
	if !ok {
		bucket = make(map[string]struct{})
		s.buckets[s.gen] = bucket
	}
	bucket[key] = struct{}{}
}

func (s *genSet) has(key string) bool {
	_, ok := s.buckets[s.gen][key]
	return ok
}

func (s *genSet) completeTurn(gen int) {
	for g := range s.buckets {
		if g != gen {
			delete(s.buckets, g)
		}
	}
	s.gen = gen
}

func (s *genSet) len() int {
	n := 0
	for _, bucket := range s.buckets {
		n += len(bucket)
	}
	return n
}
