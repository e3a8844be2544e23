package engine

import (
	"sync"
	"time"
)

// Subscriber receives a snapshot of an action record after every mutation.
type Subscriber func(state ActionState)

// Store is the single source of truth for action records. Every mutation is
// observable through subscriptions; records are never dropped.
type Store struct {
	mu     sync.RWMutex
	states map[string]*ActionState
	order  []string

	subMu   sync.RWMutex
	subs    map[int]Subscriber
	nextSub int
}

// NewStore creates an empty record store.
func NewStore() *Store {
	return &Store{
		states: make(map[string]*ActionState),
		subs:   make(map[int]Subscriber),
	}
}

// Upsert merges a mutation into the record for id, creating it with status
// pending if absent. Status changes requested by apply are discarded once a
// record is terminal; all transitions are monotonic.
func (s *Store) Upsert(id string, apply func(state *ActionState)) ActionState {
	s.mu.Lock()

	state, ok := s.states[id]
	if !ok {
		state = &ActionState{
			ID:         id,
			Status:     StatusPending,
			EnqueuedAt: time.Now(),
		}
		s.states[id] = state
		s.order = append(s.order, id)
	}

	prev := state.Status
	if apply != nil {
		apply(state)
	}

	// Terminal states are final regardless of what apply requested.
	if prev.IsTerminal() && state.Status != prev {
		state.Status = prev
	}
	if state.Status.IsTerminal() && !prev.IsTerminal() && state.SettledAt == nil {
		now := time.Now()
		state.SettledAt = &now
	}

	snapshot := *state
	s.mu.Unlock()

	s.notify(snapshot)
	return snapshot
}

// Get returns a snapshot of the record for id.
func (s *Store) Get(id string) (ActionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[id]
	if !ok {
		return ActionState{}, false
	}
	return *state, true
}

// List returns snapshots of all records in arrival order.
func (s *Store) List() []ActionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActionState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.states[id])
	}
	return out
}

// Subscribe registers a callback fired on every record mutation. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(snapshot ActionState) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(snapshot)
	}
}
