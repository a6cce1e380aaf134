package history

import (
	"log"
	"sync"

	"github.com/reqlab/reqlab/internal/draft"
	"github.com/reqlab/reqlab/internal/storage"
)

// DefaultLimit matches the ring size the client has always used.
const DefaultLimit = 20

// Store keeps the most recent executed requests, newest first. The sequence
// is truncated to the limit after every insertion; entries beyond the bound
// are silently discarded.
type Store struct {
	mu      sync.RWMutex
	entries []draft.Draft
	limit   int
	repo    *storage.Repository
}

func NewStore(repo *storage.Repository, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Store{repo: repo, limit: limit}
	if repo != nil {
		var saved []draft.Draft
		ok, err := repo.Load(&saved)
		if err != nil {
			log.Printf("history load error: %v", err)
		}
		if ok {
			if len(saved) > limit {
				saved = saved[:limit]
			}
			s.entries = saved
		}
	}
	return s
}

// Push prepends a snapshot and truncates to the limit. Ids are freshly
// generated by the caller's Snapshot, so collisions are not a concern.
func (s *Store) Push(entry draft.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]draft.Draft{entry}, s.entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
	s.persistLocked()
}

// Entries returns a copy, newest first.
func (s *Store) Entries() []draft.Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]draft.Draft, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear empties the sequence and removes its persisted state entirely.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	if s.repo == nil {
		return
	}
	if err := s.repo.Delete(); err != nil {
		log.Printf("history clear error: %v", err)
	}
}

func (s *Store) persistLocked() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(s.entries); err != nil {
		log.Printf("history save error: %v", err)
	}
}
