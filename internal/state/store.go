package state

import "sync"

// Store is the in-memory, concurrency-safe view of a Snapshot. Read-modify-write
// on one org is serialized by that org's lock; different orgs proceed in parallel.
type Store struct {
	mu    sync.Mutex
	orgs  Snapshot
	locks map[string]*sync.Mutex
}

// NewStore wraps snap. The store owns snap from here on.
func NewStore(snap Snapshot) *Store {
	return &Store{
		orgs:  snap.normalize(),
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns org's lock, creating it if needed. Caller holds s.mu.
func (s *Store) lockFor(org string) *sync.Mutex {
	lock, ok := s.locks[org]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[org] = lock
	}
	return lock
}

// Update runs fn with exclusive access to org's state, creating an empty
// uninitialized record on first encounter.
func (s *Store) Update(org string, fn func(*OrgState) error) error {
	s.mu.Lock()
	st, ok := s.orgs[org]
	if !ok {
		st = NewOrgState(org)
		s.orgs[org] = st
	}
	lock := s.lockFor(org)
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(st)
}

// Get returns a copy of org's state and whether it has been recorded.
func (s *Store) Get(org string) (*OrgState, bool) {
	s.mu.Lock()
	st, ok := s.orgs[org]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	lock := s.lockFor(org)
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return st.Clone(), true
}

// Snapshot returns a deep copy of the whole store, suitable for persisting.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	orgs := s.orgs.Orgs()
	s.mu.Unlock()

	out := make(Snapshot, len(orgs))
	for _, org := range orgs {
		if st, ok := s.Get(org); ok {
			out[org] = st
		}
	}
	return out
}
