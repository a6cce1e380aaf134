package collection

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reqlab/reqlab/internal/draft"
	"github.com/reqlab/reqlab/internal/notify"
	"github.com/reqlab/reqlab/internal/storage"
)

// Collection is a named grouping of saved requests. Append-only in this
// scope: requests are added, never edited in place.
type Collection struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Requests    []draft.Draft `json:"requests"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type Store struct {
	mu          sync.RWMutex
	collections []Collection
	repo        *storage.Repository
	notifier    notify.Notifier
}

func NewStore(repo *storage.Repository, notifier notify.Notifier) *Store {
	if notifier == nil {
		notifier = notify.Noop()
	}
	s := &Store{repo: repo, notifier: notifier}
	if repo != nil {
		var saved []Collection
		ok, err := repo.Load(&saved)
		if err != nil {
			log.Printf("collections load error: %v", err)
		}
		if ok {
			s.collections = saved
		}
	}
	return s
}

func (s *Store) Collections() []Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Collection, len(s.collections))
	copy(out, s.collections)
	return out
}

func (s *Store) Create(name, description string) Collection {
	now := time.Now()
	c := Collection{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Requests:    []draft.Draft{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.collections = append(s.collections, c)
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.Successf("collection %q created", name)
	return c
}

// AddRequest appends a copy of the request under a fresh id and bumps the
// collection's UpdatedAt. Unknown collection ids are a no-op with a
// notification; existing collections stay untouched.
func (s *Store) AddRequest(collectionID string, request draft.Draft) {
	s.mu.Lock()
	for i := range s.collections {
		if s.collections[i].ID != collectionID {
			continue
		}
		s.collections[i].Requests = append(s.collections[i].Requests, request.Snapshot())
		s.collections[i].UpdatedAt = time.Now()
		s.persistLocked()
		s.mu.Unlock()

		s.notifier.Successf("request added to collection")
		return
	}
	s.mu.Unlock()

	s.notifier.Errorf("collection not found")
}

// ByID returns a copy of the collection, or ok=false on a miss.
func (s *Store) ByID(id string) (Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.collections {
		if c.ID == id {
			return c, true
		}
	}
	return Collection{}, false
}

func (s *Store) persistLocked() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(s.collections); err != nil {
		log.Printf("collections save error: %v", err)
	}
}
