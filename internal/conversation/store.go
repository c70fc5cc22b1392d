package conversation

import (
	"sort"
	"sync"
)

// Store holds the state of every open conversation, keyed by id.
type Store struct {
	// dispatchMu orders reduce and notify as one step, so subscribers see
	// states in the order they were produced.
	dispatchMu sync.Mutex

	mu     sync.Mutex
	states map[int64]State

	subMu  sync.RWMutex
	nextID int
	subs   map[int]func(int64, State)
}

func NewStore() *Store {
	return &Store{
		states: make(map[int64]State),
		subs:   make(map[int]func(int64, State)),
	}
}

// Dispatch reduces the conversation's state and notifies subscribers with
// the result. Subscribers must not call Dispatch.
func (s *Store) Dispatch(id int64, a Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	cur, ok := s.states[id]
	if !ok {
		cur = State{ConversationID: id}
	}
	next := Reduce(cur, a)
	next.ConversationID = id
	s.states[id] = next
	s.mu.Unlock()

	s.notify(id, next)
	return next
}

func (s *Store) Get(id int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return st, ok
}

// Snapshot returns every state ordered by conversation id.
func (s *Store) Snapshot() []State {
	s.mu.Lock()
	out := make([]State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

func (s *Store) Delete(id int64) {
	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
}

// Subscribe registers fn for every dispatched change. The returned func
// removes it.
func (s *Store) Subscribe(fn func(id int64, st State)) func() {
	s.subMu.Lock()
	s.nextID++
	key := s.nextID
	s.subs[key] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, key)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(id int64, st State) {
	s.subMu.RLock()
	keys := make([]int, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	fns := make([]func(int64, State), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, s.subs[k])
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(id, st)
	}
}
