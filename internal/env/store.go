package env

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/reqlab/reqlab/internal/notify"
	"github.com/reqlab/reqlab/internal/storage"
)

type Variable struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type Environment struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Variables []Variable `json:"variables"`
	IsActive  bool       `json:"isActive"`
}

// Store owns the named environments. At most one environment is active at a
// time; switching is a single atomic transition. Mutations persist
// fire-and-forget, so save failures only reach the log.
type Store struct {
	mu       sync.RWMutex
	envs     []Environment
	repo     *storage.Repository
	notifier notify.Notifier
}

func NewStore(repo *storage.Repository, notifier notify.Notifier) *Store {
	if notifier == nil {
		notifier = notify.Noop()
	}
	s := &Store{repo: repo, notifier: notifier}
	s.hydrate()
	return s
}

func (s *Store) hydrate() {
	if s.repo != nil {
		var envs []Environment
		ok, err := s.repo.Load(&envs)
		if err != nil {
			log.Printf("environments load error: %v", err)
		}
		if ok && len(envs) > 0 {
			s.envs = envs
			s.enforceSingleActive()
			return
		}
	}
	s.envs = []Environment{{
		ID:        uuid.NewString(),
		Name:      "Default",
		Variables: []Variable{},
		IsActive:  true,
	}}
}

// enforceSingleActive repairs persisted state that drifted out of the
// single-active invariant; the first active wins.
func (s *Store) enforceSingleActive() {
	found := false
	for i := range s.envs {
		if !s.envs[i].IsActive {
			continue
		}
		if found {
			s.envs[i].IsActive = false
		}
		found = true
	}
}

func (s *Store) Environments() []Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Environment, len(s.envs))
	copy(out, s.envs)
	return out
}

// Active returns a copy of the active environment, or nil when none is set.
func (s *Store) Active() *Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.envs {
		if e.IsActive {
			active := e
			return &active
		}
	}
	return nil
}

// SetActive switches the active environment in one transition: the matching
// environment becomes active and every other is cleared. An unknown id is a
// silent no-op so a stale UI selection never disturbs current state.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	var name string
	for i := range s.envs {
		if s.envs[i].ID == id {
			name = s.envs[i].Name
			break
		}
	}
	if name == "" {
		s.mu.Unlock()
		return
	}
	for i := range s.envs {
		s.envs[i].IsActive = s.envs[i].ID == id
	}
	s.persistLocked()
	s.mu.Unlock()

	s.notifier.Successf("environment %q activated", name)
}

// Create adds a new inactive environment and returns its id.
func (s *Store) Create(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Environment{ID: uuid.NewString(), Name: name, Variables: []Variable{}}
	s.envs = append(s.envs, e)
	s.persistLocked()
	return e.ID
}

// SetVariable adds or replaces a variable on the given environment. Unknown
// environment ids are a no-op.
func (s *Store) SetVariable(envID string, v Variable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.envs {
		if s.envs[i].ID != envID {
			continue
		}
		replaced := false
		for j := range s.envs[i].Variables {
			if s.envs[i].Variables[j].Key == v.Key {
				s.envs[i].Variables[j] = v
				replaced = true
				break
			}
		}
		if !replaced {
			s.envs[i].Variables = append(s.envs[i].Variables, v)
		}
		s.persistLocked()
		return
	}
}

// RemoveVariable deletes a variable by key. Missing keys are a no-op.
func (s *Store) RemoveVariable(envID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.envs {
		if s.envs[i].ID != envID {
			continue
		}
		vars := s.envs[i].Variables
		for j := range vars {
			if vars[j].Key == key {
				s.envs[i].Variables = append(vars[:j:j], vars[j+1:]...)
				s.persistLocked()
				return
			}
		}
		return
	}
}

// ByName returns the first environment with the given name.
func (s *Store) ByName(name string) (Environment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.envs {
		if e.Name == name {
			return e, true
		}
	}
	return Environment{}, false
}

func (s *Store) persistLocked() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(s.envs); err != nil {
		log.Printf("environments save error: %v", err)
	}
}
