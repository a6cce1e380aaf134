package env

import (
	"testing"

	"github.com/reqlab/reqlab/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.Repository) {
	t.Helper()
	repo := storage.NewRepository(storage.NewMemoryBackend(), storage.KeyEnvironments)
	return NewStore(repo, nil), repo
}

func activeCount(s *Store) int {
	count := 0
	for _, e := range s.Environments() {
		if e.IsActive {
			count++
		}
	}
	return count
}

func TestDefaultStateHasSingleActiveDefault(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	envs := s.Environments()
	if len(envs) != 1 {
		t.Fatalf("expected one environment, got %d", len(envs))
	}
	if envs[0].Name != "Default" || !envs[0].IsActive {
		t.Fatalf("unexpected default environment %#v", envs[0])
	}
	if len(envs[0].Variables) != 0 {
		t.Fatalf("expected no variables, got %d", len(envs[0].Variables))
	}
}

func TestSetActiveIsAtomic(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	staging := s.Create("staging")
	prod := s.Create("production")

	s.SetActive(staging)
	if active := s.Active(); active == nil || active.ID != staging {
		t.Fatalf("expected staging active, got %#v", active)
	}
	if activeCount(s) != 1 {
		t.Fatalf("expected exactly one active environment")
	}

	s.SetActive(prod)
	if active := s.Active(); active == nil || active.ID != prod {
		t.Fatalf("expected production active, got %#v", active)
	}
	if activeCount(s) != 1 {
		t.Fatalf("expected exactly one active environment after switch")
	}
}

func TestSetActiveUnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	before := s.Active()
	s.SetActive("nonexistent")
	after := s.Active()
	if after == nil || before == nil || after.ID != before.ID {
		t.Fatalf("expected active environment unchanged, before=%#v after=%#v", before, after)
	}
	if activeCount(s) != 1 {
		t.Fatalf("expected exactly one active environment")
	}
}

func TestVariablesRoundTripThroughRepository(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	repo := storage.NewRepository(backend, storage.KeyEnvironments)
	s := NewStore(repo, nil)

	id := s.Active().ID
	s.SetVariable(id, Variable{Key: "base", Value: "example.com", Enabled: true})
	s.SetVariable(id, Variable{Key: "token", Value: "abc", Enabled: false})
	s.SetVariable(id, Variable{Key: "base", Value: "api.example.com", Enabled: true})

	rehydrated := NewStore(storage.NewRepository(backend, storage.KeyEnvironments), nil)
	active := rehydrated.Active()
	if active == nil {
		t.Fatalf("expected active environment after rehydrate")
	}
	if len(active.Variables) != 2 {
		t.Fatalf("expected 2 variables, got %d", len(active.Variables))
	}
	if active.Variables[0].Value != "api.example.com" {
		t.Fatalf("expected upsert to replace value, got %q", active.Variables[0].Value)
	}

	rehydrated.RemoveVariable(active.ID, "token")
	if got := len(rehydrated.Active().Variables); got != 1 {
		t.Fatalf("expected 1 variable after removal, got %d", got)
	}
}

func TestHydrateRepairsMultipleActive(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	repo := storage.NewRepository(backend, storage.KeyEnvironments)
	corrupt := []Environment{
		{ID: "a", Name: "one", IsActive: true},
		{ID: "b", Name: "two", IsActive: true},
	}
	if err := repo.Save(corrupt); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	s := NewStore(storage.NewRepository(backend, storage.KeyEnvironments), nil)
	if activeCount(s) != 1 {
		t.Fatalf("expected hydrate to repair the single-active invariant")
	}
	if active := s.Active(); active == nil || active.ID != "a" {
		t.Fatalf("expected first active to win, got %#v", active)
	}
}
