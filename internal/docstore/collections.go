package docstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reqlab/reqlab/internal/errdef"
)

// CreateIndex registers a single-field ascending index and returns its name.
func (s *Store) CreateIndex(ctx context.Context, field string, unique bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollectionLocked(ctx); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_1", field)
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO doc_indexes (collection, name, field, is_unique) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, name) DO UPDATE SET is_unique = excluded.is_unique`,
		s.collection, name, field, boolToInt(unique),
	); err != nil {
		return "", errdef.Wrap(errdef.CodeStorage, err, "create index")
	}
	return name, nil
}

type DropIndexResult struct {
	NIndexesWas int `json:"nIndexesWas"`
	OK          int `json:"ok"`
}

func (s *Store) DropIndex(ctx context.Context, name string) (DropIndexResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" || name == "_id_" {
		return DropIndexResult{}, errdef.New(errdef.CodeStorage, "cannot drop index %q", name)
	}

	indexes, err := s.indexesLocked(ctx)
	if err != nil {
		return DropIndexResult{}, err
	}

	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM doc_indexes WHERE collection = ? AND name = ?`,
		s.collection, name,
	)
	if err != nil {
		return DropIndexResult{}, errdef.Wrap(errdef.CodeStorage, err, "drop index")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DropIndexResult{}, errdef.Wrap(errdef.CodeStorage, err, "drop index")
	}
	if affected == 0 {
		return DropIndexResult{}, ErrIndexNotFound
	}
	return DropIndexResult{NIndexesWas: len(indexes), OK: 1}, nil
}

func (s *Store) Indexes(ctx context.Context) ([]IndexSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollectionLocked(ctx); err != nil {
		return nil, err
	}
	return s.indexesLocked(ctx)
}

func (s *Store) indexesLocked(ctx context.Context) ([]IndexSpec, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, field, is_unique FROM doc_indexes WHERE collection = ? ORDER BY rowid`,
		s.collection,
	)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "load indexes")
	}
	defer rows.Close()

	var specs []IndexSpec
	for rows.Next() {
		var (
			name   string
			field  string
			unique int
		)
		if err := rows.Scan(&name, &field, &unique); err != nil {
			return nil, errdef.Wrap(errdef.CodeStorage, err, "scan index")
		}
		specs = append(specs, IndexSpec{
			Key:    map[string]int{field: 1},
			Name:   name,
			Unique: unique != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "iterate indexes")
	}
	return specs, nil
}

func (s *Store) RenameCollection(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.collectionExistsLocked(ctx, oldName)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCollectionNotFound
	}
	exists, err = s.collectionExistsLocked(ctx, newName)
	if err != nil {
		return err
	}
	if exists {
		return ErrCollectionExists
	}

	statements := []struct {
		query string
		args  []interface{}
	}{
		{`UPDATE collections SET name = ? WHERE name = ?`, []interface{}{newName, oldName}},
		{`UPDATE documents SET collection = ? WHERE collection = ?`, []interface{}{newName, oldName}},
		{`UPDATE doc_indexes SET collection = ? WHERE collection = ?`, []interface{}{newName, oldName}},
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "rename collection")
		}
	}
	if s.collection == oldName {
		s.collection = newName
	}
	return nil
}

// DropCollection removes the active collection, its documents and indexes.
// The next insert recreates it implicitly.
func (s *Store) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.collectionExistsLocked(ctx, s.collection)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCollectionNotFound
	}

	statements := []string{
		`DELETE FROM documents WHERE collection = ?`,
		`DELETE FROM doc_indexes WHERE collection = ?`,
		`DELETE FROM collections WHERE name = ?`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt, s.collection); err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "drop collection")
		}
	}
	return nil
}

func (s *Store) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "list collections")
	}
	defer rows.Close()

	infos := make([]CollectionInfo, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errdef.Wrap(errdef.CodeStorage, err, "scan collection")
		}
		infos = append(infos, CollectionInfo{Name: name, Type: "collection"})
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "iterate collections")
	}
	return infos, nil
}

func (s *Store) collectionExistsLocked(ctx context.Context, name string) (bool, error) {
	var found string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT name FROM collections WHERE name = ?`,
		name,
	).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errdef.Wrap(errdef.CodeStorage, err, "check collection")
	}
	return true, nil
}
