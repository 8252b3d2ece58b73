package token

import (
	"sync"
	"time"

	"github.com/maneframe/qbbillbridge/randstring"
)

// StateLifetime is how long an issued oauth state string is accepted
const StateLifetime = 10 * time.Minute

// stateLength is the length of generated state strings
const stateLength = 32

// stateStore remembers the state strings handed out in authorization
// urls so that callbacks can be matched to a login started here. States
// are single use.
type stateStore struct {
	mu       sync.Mutex
	states   map[string]time.Time
	lifetime time.Duration
}

func newStateStore(lifetime time.Duration) *stateStore {
	return &stateStore{
		states:   make(map[string]time.Time),
		lifetime: lifetime,
	}
}

// issue records and returns a new state string, dropping expired ones
func (s *stateStore) issue() string {
	state := randstring.RandString(stateLength)
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, expiry := range s.states {
		if now.After(expiry) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(s.lifetime)
	return state
}

// consume reports whether state was issued and has not expired, and
// forgets it
func (s *stateStore) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return time.Now().Before(expiry)
}

// pending is the number of outstanding states
func (s *stateStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
