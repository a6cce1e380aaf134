package storage

import (
	"encoding/json"

	"github.com/reqlab/reqlab/internal/errdef"
)

// Repository binds one state key to a JSON-serialized value. Stores hold a
// Repository instead of touching the backend directly, so tests can swap in a
// memory backend without changing store code.
type Repository struct {
	backend Backend
	key     string
}

func NewRepository(backend Backend, key string) *Repository {
	return &Repository{backend: backend, key: key}
}

// Load unmarshals the stored value into target. A missing key or a corrupt
// payload reports ok=false so callers fall back to their default state;
// corruption is surfaced through err for logging only.
func (r *Repository) Load(target interface{}) (bool, error) {
	data, ok, err := r.backend.Get(r.key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, errdef.Wrap(errdef.CodeParse, err, "decode state %q", r.key)
	}
	return true, nil
}

func (r *Repository) Save(value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode state %q", r.key)
	}
	return r.backend.Set(r.key, data)
}

func (r *Repository) Delete() error {
	return r.backend.Delete(r.key)
}
