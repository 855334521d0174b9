package store

import (
	"sync"

	"github.com/stake-plus/dao-monitor/src/gov"
)

// notifiedSet keeps per-category membership plus the order ids were marked in.
type notifiedSet struct {
	mu      sync.RWMutex
	members map[gov.Category]map[int64]struct{}
	order   map[gov.Category][]int64
}

func newNotifiedSet() *notifiedSet {
	return &notifiedSet{
		members: make(map[gov.Category]map[int64]struct{}),
		order:   make(map[gov.Category][]int64),
	}
}

func (s *notifiedSet) has(voteID int64, category gov.Category) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[category][voteID]
	return ok
}

// add reports whether the id was newly inserted.
func (s *notifiedSet) add(voteID int64, category gov.Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(voteID, category)
}

func (s *notifiedSet) addLocked(voteID int64, category gov.Category) bool {
	ids, ok := s.members[category]
	if !ok {
		ids = make(map[int64]struct{})
		s.members[category] = ids
	}
	if _, exists := ids[voteID]; exists {
		return false
	}
	ids[voteID] = struct{}{}
	s.order[category] = append(s.order[category], voteID)
	return true
}

// removeLocked undoes the most recent addLocked for the id.
func (s *notifiedSet) removeLocked(voteID int64, category gov.Category) {
	delete(s.members[category], voteID)
	ids := s.order[category]
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == voteID {
			s.order[category] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

func (s *notifiedSet) list(category gov.Category) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.order[category]))
	copy(out, s.order[category])
	return out
}
