package collection

import (
	"testing"

	"github.com/reqlab/reqlab/internal/draft"
	"github.com/reqlab/reqlab/internal/storage"
)

func TestCreateAndAddRequest(t *testing.T) {
	t.Parallel()

	backend := storage.NewMemoryBackend()
	s := NewStore(storage.NewRepository(backend, storage.KeyCollections), nil)

	c := s.Create("smoke", "basic checks")
	if c.ID == "" || c.Name != "smoke" {
		t.Fatalf("unexpected collection %#v", c)
	}
	if len(c.Requests) != 0 {
		t.Fatalf("expected empty requests on create")
	}

	req := draft.Default("http://localhost:5000")
	s.AddRequest(c.ID, req)

	stored, ok := s.ByID(c.ID)
	if !ok {
		t.Fatalf("expected collection to exist")
	}
	if len(stored.Requests) != 1 {
		t.Fatalf("expected one request, got %d", len(stored.Requests))
	}
	if stored.Requests[0].ID == req.ID {
		t.Fatalf("expected appended request to get a fresh id")
	}
	if !stored.UpdatedAt.After(stored.CreatedAt) && !stored.UpdatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("expected UpdatedAt bumped")
	}

	// state survives rehydration
	reloaded := NewStore(storage.NewRepository(backend, storage.KeyCollections), nil)
	again, ok := reloaded.ByID(c.ID)
	if !ok || len(again.Requests) != 1 {
		t.Fatalf("expected collection to rehydrate with its request")
	}
}

func TestAddRequestUnknownIDLeavesCollectionsUntouched(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, nil)
	a := s.Create("a", "")
	b := s.Create("b", "")

	s.AddRequest("nonexistent", draft.Default("http://localhost:5000"))

	for _, id := range []string{a.ID, b.ID} {
		c, ok := s.ByID(id)
		if !ok {
			t.Fatalf("expected collection %q present", id)
		}
		if len(c.Requests) != 0 {
			t.Fatalf("expected collection %q untouched, got %d requests", id, len(c.Requests))
		}
	}
}
