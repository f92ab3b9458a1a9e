package server

import (
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"

	"github.com/dgplabs/dgpscan/internal/workflow"
)

// sessions maps a cookie id to its workflow. Entries are kept in use order;
// once capacity is exceeded the least recently used session is reset and
// dropped.
type sessions struct {
	mu       sync.Mutex
	byID     *linkedhashmap.Map
	capacity int
	create   func() *workflow.Controller
}

func newSessions(capacity int, create func() *workflow.Controller) *sessions {
	return &sessions{
		byID:     linkedhashmap.New(),
		capacity: capacity,
		create:   create,
	}
}

// get returns the controller for id, creating a new session when id is
// empty or unknown. The returned id is the one to hand back to the client.
func (s *sessions) get(id string) (string, *workflow.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if v, found := s.byID.Get(id); found {
			s.byID.Remove(id)
			s.byID.Put(id, v)
			return id, v.(*workflow.Controller)
		}
	}

	id = uuid.NewString()
	c := s.create()
	s.byID.Put(id, c)
	for s.byID.Size() > s.capacity {
		oldest := s.byID.Keys()[0]
		if v, found := s.byID.Get(oldest); found {
			v.(*workflow.Controller).Reset()
		}
		s.byID.Remove(oldest)
	}
	return id, c
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID.Size()
}

// resetAll resets every session and waits for abandoned analyses to return.
func (s *sessions) resetAll() {
	s.mu.Lock()
	all := s.byID.Values()
	s.byID.Clear()
	s.mu.Unlock()
	for _, v := range all {
		c := v.(*workflow.Controller)
		c.Reset()
		c.Wait()
	}
}
