package draft

import (
	"log"
	"sync"

	"github.com/reqlab/reqlab/internal/storage"
)

// Patch is a partial draft update. Nil fields are left untouched; set fields
// overwrite wholesale (maps replace, they do not merge key-wise).
type Patch struct {
	Name    *string
	URL     *string
	Method  *string
	Headers map[string]string
	Params  map[string]string
	Body    *Body
}

// Store owns the session's active draft. Every mutation persists
// fire-and-forget; a failed save is logged and the in-memory draft stays
// authoritative for the session.
type Store struct {
	mu      sync.RWMutex
	current Draft
	repo    *storage.Repository
}

func NewStore(repo *storage.Repository, baseURL string) *Store {
	s := &Store{repo: repo}
	s.current = Default(baseURL)
	if repo != nil {
		var saved Draft
		ok, err := repo.Load(&saved)
		if err != nil {
			log.Printf("active request load error: %v", err)
		}
		if ok && saved.ID != "" {
			s.current = saved
		}
	}
	return s
}

func (s *Store) Current() Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update merges the patch into the active draft and persists the result.
func (s *Store) Update(patch Patch) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Name != nil {
		s.current.Name = *patch.Name
	}
	if patch.URL != nil {
		s.current.URL = *patch.URL
	}
	if patch.Method != nil {
		s.current.Method = *patch.Method
	}
	if patch.Headers != nil {
		s.current.Headers = cloneMap(patch.Headers)
	}
	if patch.Params != nil {
		s.current.Params = cloneMap(patch.Params)
	}
	if patch.Body != nil {
		s.current.Body = *patch.Body
	}
	s.persistLocked()
	return s.current.Clone()
}

// Load replaces the active draft wholesale, used when restoring a history or
// collection entry.
func (s *Store) Load(d Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = d.Clone()
	s.persistLocked()
}

func (s *Store) persistLocked() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(s.current); err != nil {
		log.Printf("active request save error: %v", err)
	}
}
