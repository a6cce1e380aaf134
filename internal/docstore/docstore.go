package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reqlab/reqlab/internal/errdef"
)

// DefaultCollection is the collection the demo API operates on.
const DefaultCollection = "users"

var (
	ErrNotFound           = errdef.New(errdef.CodeStorage, "document not found")
	ErrCollectionNotFound = errdef.New(errdef.CodeStorage, "collection not found")
	ErrCollectionExists   = errdef.New(errdef.CodeStorage, "collection already exists")
	ErrIndexNotFound      = errdef.New(errdef.CodeStorage, "index not found")
)

type Document map[string]interface{}

type UpdateResult struct {
	Acknowledged  bool   `json:"acknowledged"`
	MatchedCount  int    `json:"matchedCount"`
	ModifiedCount int    `json:"modifiedCount"`
	UpsertedCount int    `json:"upsertedCount"`
	UpsertedID    string `json:"upsertedId,omitempty"`
}

type DeleteResult struct {
	Acknowledged bool `json:"acknowledged"`
	DeletedCount int  `json:"deletedCount"`
}

type IndexSpec struct {
	Key    map[string]int `json:"key"`
	Name   string         `json:"name"`
	Unique bool           `json:"unique,omitempty"`
}

type CollectionInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type FindOptions struct {
	Limit *int
	Skip  int
	Sort  map[string]int
}

// Store keeps JSON documents in sqlite, one row per document, and exposes a
// document-database surface over them. Filtering and sorting happen in
// process, the table is only the durable byte store.
type Store struct {
	mu         sync.Mutex
	db         *sql.DB
	collection string
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "open document store")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, collection: DefaultCollection}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS doc_indexes (
			collection TEXT NOT NULL,
			name TEXT NOT NULL,
			field TEXT NOT NULL,
			is_unique INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, name)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "initialise document store")
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureCollection registers the collection and its default indexes on first
// write, mirroring implicit collection creation.
func (s *Store) ensureCollectionLocked(ctx context.Context) error {
	var name string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT name FROM collections WHERE name = ?`,
		s.collection,
	).Scan(&name)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return errdef.Wrap(errdef.CodeStorage, err, "check collection")
	}

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO collections (name) VALUES (?)`,
		s.collection,
	); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "register collection")
	}
	defaults := []struct {
		name   string
		field  string
		unique bool
	}{
		{name: "_id_", field: "_id", unique: true},
		{name: "email_1", field: "email", unique: true},
	}
	for _, idx := range defaults {
		if _, err := s.db.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO doc_indexes (collection, name, field, is_unique) VALUES (?, ?, ?, ?)`,
			s.collection, idx.name, idx.field, boolToInt(idx.unique),
		); err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "register default index")
		}
	}
	return nil
}

func (s *Store) InsertOne(ctx context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollectionLocked(ctx); err != nil {
		return nil, err
	}
	prepared, err := s.prepareInsertLocked(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := s.writeLocked(ctx, prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *Store) InsertMany(ctx context.Context, docs []Document) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCollectionLocked(ctx); err != nil {
		return nil, err
	}

	inserted := make([]Document, 0, len(docs))
	for _, doc := range docs {
		prepared, err := s.prepareInsertLocked(ctx, doc)
		if err != nil {
			return nil, err
		}
		if err := s.writeLocked(ctx, prepared); err != nil {
			return nil, err
		}
		inserted = append(inserted, prepared)
	}
	return inserted, nil
}

func (s *Store) prepareInsertLocked(ctx context.Context, doc Document) (Document, error) {
	prepared := cloneDocument(doc)
	if err := validateUser(prepared); err != nil {
		return nil, err
	}
	if _, ok := prepared["_id"]; !ok {
		prepared["_id"] = strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	}
	if _, ok := prepared["createdAt"]; !ok {
		prepared["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := s.checkUniqueLocked(ctx, prepared, ""); err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *Store) writeLocked(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode document")
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body`,
		s.collection, documentID(doc), string(body),
	); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "write document")
	}
	return nil
}

// checkUniqueLocked enforces unique indexes. exceptID excludes the document
// being updated from the collision scan.
func (s *Store) checkUniqueLocked(ctx context.Context, doc Document, exceptID string) error {
	indexes, err := s.indexesLocked(ctx)
	if err != nil {
		return err
	}
	existing, err := s.loadAllLocked(ctx)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		if !idx.Unique {
			continue
		}
		for field := range idx.Key {
			value, ok := doc[field]
			if !ok || value == nil {
				continue
			}
			for _, other := range existing {
				if documentID(other) == exceptID || documentID(other) == documentID(doc) {
					continue
				}
				if valuesEqual(other[field], value) {
					return errdef.New(
						errdef.CodeStorage,
						"duplicate key error: index %s dup key %v",
						idx.Name, value,
					)
				}
			}
		}
	}
	return nil
}

func (s *Store) Find(ctx context.Context, filter Document, opts FindOptions) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(ctx, filter, opts)
}

func (s *Store) findLocked(ctx context.Context, filter Document, opts FindOptions) ([]Document, error) {
	docs, err := s.loadAllLocked(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	if len(opts.Sort) > 0 {
		sortDocuments(matched, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit != nil && *opts.Limit < len(matched) {
		matched = matched[:*opts.Limit]
	}
	return matched, nil
}

func (s *Store) FindOne(ctx context.Context, filter Document) (Document, error) {
	one := 1
	docs, err := s.Find(ctx, filter, FindOptions{Limit: &one})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (s *Store) Distinct(ctx context.Context, field string, filter Document) ([]interface{}, error) {
	docs, err := s.Find(ctx, filter, FindOptions{})
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, 0)
	for _, doc := range docs {
		value, ok := doc[field]
		if !ok {
			continue
		}
		seen := false
		for _, prior := range values {
			if valuesEqual(prior, value) {
				seen = true
				break
			}
		}
		if !seen {
			values = append(values, value)
		}
	}
	return values, nil
}

func (s *Store) Count(ctx context.Context, filter Document) (int, error) {
	docs, err := s.Find(ctx, filter, FindOptions{})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *Store) UpdateOne(ctx context.Context, filter, update Document) (UpdateResult, error) {
	return s.update(ctx, filter, update, true)
}

func (s *Store) UpdateMany(ctx context.Context, filter, update Document) (UpdateResult, error) {
	return s.update(ctx, filter, update, false)
}

func (s *Store) update(ctx context.Context, filter, update Document, single bool) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.findLocked(ctx, filter, FindOptions{})
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{Acknowledged: true}
	for _, doc := range docs {
		result.MatchedCount++
		changed, err := applyUpdate(doc, update)
		if err != nil {
			return UpdateResult{}, err
		}
		if changed {
			if err := s.checkUniqueLocked(ctx, doc, documentID(doc)); err != nil {
				return UpdateResult{}, err
			}
			if err := s.writeLocked(ctx, doc); err != nil {
				return UpdateResult{}, err
			}
			result.ModifiedCount++
		}
		if single {
			break
		}
	}
	return result, nil
}

func (s *Store) ReplaceOne(ctx context.Context, filter, replacement Document) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.findLocked(ctx, filter, FindOptions{})
	if err != nil {
		return UpdateResult{}, err
	}
	if len(docs) == 0 {
		return UpdateResult{Acknowledged: true}, nil
	}

	current := docs[0]
	next := cloneDocument(replacement)
	next["_id"] = current["_id"]
	if err := validateUser(next); err != nil {
		return UpdateResult{}, err
	}
	if err := s.checkUniqueLocked(ctx, next, documentID(current)); err != nil {
		return UpdateResult{}, err
	}
	if err := s.writeLocked(ctx, next); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

func (s *Store) DeleteOne(ctx context.Context, filter Document) (DeleteResult, error) {
	return s.delete(ctx, filter, true)
}

func (s *Store) DeleteMany(ctx context.Context, filter Document) (DeleteResult, error) {
	return s.delete(ctx, filter, false)
}

func (s *Store) delete(ctx context.Context, filter Document, single bool) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.findLocked(ctx, filter, FindOptions{})
	if err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{Acknowledged: true}
	for _, doc := range docs {
		if _, err := s.db.ExecContext(
			ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`,
			s.collection, documentID(doc),
		); err != nil {
			return DeleteResult{}, errdef.Wrap(errdef.CodeStorage, err, "delete document")
		}
		result.DeletedCount++
		if single {
			break
		}
	}
	return result, nil
}

// FindOneAndUpdate applies the update and returns the document, post-image
// when after is true, otherwise the pre-image. A miss returns nil, nil.
func (s *Store) FindOneAndUpdate(ctx context.Context, filter, update Document, after bool) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.findLocked(ctx, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	doc := docs[0]
	before := cloneDocument(doc)
	if _, err := applyUpdate(doc, update); err != nil {
		return nil, err
	}
	if err := s.checkUniqueLocked(ctx, doc, documentID(doc)); err != nil {
		return nil, err
	}
	if err := s.writeLocked(ctx, doc); err != nil {
		return nil, err
	}
	if after {
		return doc, nil
	}
	return before, nil
}

func (s *Store) FindOneAndDelete(ctx context.Context, filter Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.findLocked(ctx, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	doc := docs[0]
	if _, err := s.db.ExecContext(
		ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		s.collection, documentID(doc),
	); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "delete document")
	}
	return doc, nil
}

func (s *Store) FindOneAndReplace(ctx context.Context, filter, replacement Document, after bool) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.findLocked(ctx, filter, FindOptions{})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	current := docs[0]
	next := cloneDocument(replacement)
	next["_id"] = current["_id"]
	if err := validateUser(next); err != nil {
		return nil, err
	}
	if err := s.checkUniqueLocked(ctx, next, documentID(current)); err != nil {
		return nil, err
	}
	if err := s.writeLocked(ctx, next); err != nil {
		return nil, err
	}
	if after {
		return next, nil
	}
	return current, nil
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.DeleteMany(ctx, Document{})
	return err
}

// Seed replaces the collection contents with a fixed sample set.
func (s *Store) Seed(ctx context.Context) ([]Document, error) {
	if err := s.Reset(ctx); err != nil {
		return nil, err
	}
	sample := []Document{
		{"name": "Alice", "email": "alice@example.com", "age": float64(28), "city": "New York", "active": true},
		{"name": "Bob", "email": "bob@example.com", "age": float64(35), "city": "Chicago", "active": true},
		{"name": "Charlie", "email": "charlie@example.com", "age": float64(17), "city": "New York", "active": true},
		{"name": "Dave", "email": "dave@example.com", "age": float64(42), "city": "Seattle", "active": false},
		{"name": "Eve", "email": "eve@example.com", "age": float64(16), "city": "Chicago", "active": true},
	}
	return s.InsertMany(ctx, sample)
}

func (s *Store) All(ctx context.Context) ([]Document, error) {
	return s.Find(ctx, Document{}, FindOptions{})
}

func (s *Store) loadAllLocked(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY rowid`,
		s.collection,
	)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "load documents")
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errdef.Wrap(errdef.CodeStorage, err, "scan document")
		}
		var doc Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, errdef.Wrap(errdef.CodeParse, err, "decode document")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "iterate documents")
	}
	return docs, nil
}

func documentID(doc Document) string {
	id, _ := doc["_id"].(string)
	return id
}

func cloneDocument(doc Document) Document {
	cloned := make(Document, len(doc))
	for key, value := range doc {
		cloned[key] = value
	}
	return cloned
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func validateUser(doc Document) error {
	required := []string{"name", "email", "age", "city", "active"}
	var missing []string
	for _, field := range required {
		value, ok := doc[field]
		if !ok || value == nil {
			missing = append(missing, field)
			continue
		}
		if text, isString := value.(string); isString && strings.TrimSpace(text) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return errdef.New(
			errdef.CodeStorage,
			"user validation failed: %s required",
			strings.Join(missing, ", "),
		)
	}
	if _, ok := doc["age"].(float64); !ok {
		if _, ok := doc["age"].(int); !ok {
			return errdef.New(errdef.CodeStorage, "user validation failed: age must be a number")
		}
	}
	if _, ok := doc["active"].(bool); !ok {
		return errdef.New(errdef.CodeStorage, "user validation failed: active must be a boolean")
	}
	return nil
}
