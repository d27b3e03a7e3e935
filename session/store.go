package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store keeps the states of live sessions. It is bounded: the least recently
// used session is evicted when full, and a session idle for longer than ttl
// expires.
type Store struct {
	cache *expirable.LRU[string, *State]
}

func NewStore(size int, ttl time.Duration) *Store {
	return &Store{cache: expirable.NewLRU[string, *State](size, nil, ttl)}
}

// Get returns the state for id, or a fresh one under a new id when id is
// unknown or expired. created reports the latter.
func (s *Store) Get(id string) (st *State, created bool) {
	if id != "" {
		if st, ok := s.cache.Get(id); ok {
			// re-add to restart the ttl
			s.cache.Add(id, st)
			return st, false
		}
	}
	st = NewState(uuid.NewString())
	s.cache.Add(st.ID, st)
	return st, true
}

func (s *Store) Delete(id string) {
	s.cache.Remove(id)
}

func (s *Store) Len() int {
	return s.cache.Len()
}
