package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/reqlab/reqlab/internal/docstore"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestApp(t *testing.T) (*fiber.App, *docstore.Store) {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store, Options{ClientURL: "http://localhost:3000"}), store
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope %q: %v", raw, err)
	}
	return resp.StatusCode, env
}

func seedApp(t *testing.T, app *fiber.App) {
	t.Helper()
	status, env := do(t, app, http.MethodPost, "/api/seed", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("seed failed: %d %s", status, env.Message)
	}
}

func TestInsertOneCreatesUser(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/api/users", map[string]interface{}{
		"name": "Ada", "email": "ada@example.com", "age": 36, "city": "London", "active": true,
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("unexpected response %d %s", status, env.Message)
	}

	var user map[string]interface{}
	if err := json.Unmarshal(env.Data, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user["_id"] == nil || user["createdAt"] == nil {
		t.Fatalf("expected generated fields, got %#v", user)
	}
}

func TestInsertOneValidationError(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/api/users", map[string]interface{}{"name": "NoEmail"})
	if status != http.StatusBadRequest || env.Success {
		t.Fatalf("expected 400 validation failure, got %d", status)
	}
	if env.Message == "" {
		t.Fatalf("expected error message")
	}
}

func TestFindOneReturns404OnMiss(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodGet, "/api/users/one", map[string]interface{}{"name": "Nobody"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if env.Message != "User not found" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestLimitValidationMessages(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	cases := []struct {
		body    interface{}
		status  int
		message string
	}{
		{map[string]interface{}{}, http.StatusBadRequest, "Limit (param) is required"},
		{map[string]interface{}{"limit": "abc"}, http.StatusBadRequest, "Limit must be a number"},
		{map[string]interface{}{"limit": -2}, http.StatusBadRequest, "Limit must be a positive number or zero"},
	}
	for _, tc := range cases {
		status, env := do(t, app, http.MethodGet, "/api/users/limit", tc.body)
		if status != tc.status || env.Message != tc.message {
			t.Fatalf("body %#v: got %d %q, want %d %q", tc.body, status, env.Message, tc.status, tc.message)
		}
	}

	status, env := do(t, app, http.MethodGet, "/api/users/limit", map[string]interface{}{"limit": 2})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, env.Message)
	}
	var users []map[string]interface{}
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestDistinctRespondsOnce(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodGet, "/api/users/distinct", map[string]interface{}{"field": "city"})
	if status != http.StatusOK || !env.Success {
		t.Fatalf("unexpected response %d %s", status, env.Message)
	}
	var values []interface{}
	if err := json.Unmarshal(env.Data, &values); err != nil {
		t.Fatalf("decode values: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 distinct cities, got %#v", values)
	}

	status, env = do(t, app, http.MethodGet, "/api/users/distinct", map[string]interface{}{
		"field": "city",
		"query": map[string]interface{}{"active": true},
	})
	if status != http.StatusOK {
		t.Fatalf("unexpected filtered response %d %s", status, env.Message)
	}
	if err := json.Unmarshal(env.Data, &values); err != nil {
		t.Fatalf("decode values: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 distinct active cities, got %#v", values)
	}

	status, env = do(t, app, http.MethodGet, "/api/users/distinct", map[string]interface{}{
		"field": "city",
		"query": "not-an-object",
	})
	if status != http.StatusBadRequest || env.Message != "Query must be an object" {
		t.Fatalf("expected query validation failure, got %d %q", status, env.Message)
	}
}

func TestUpdateOneReturnsCounts(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodPut, "/api/users/one", map[string]interface{}{
		"filter": map[string]interface{}{"name": "Alice"},
		"update": map[string]interface{}{"$set": map[string]interface{}{"city": "Berlin"}},
	})
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d (%s)", status, env.Message)
	}
	var result docstore.UpdateResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.MatchedCount != 1 || result.ModifiedCount != 1 {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestRenameCollectionValidation(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	cases := []struct {
		body    map[string]interface{}
		status  int
		message string
	}{
		{map[string]interface{}{"oldName": "users"}, http.StatusBadRequest, "Both oldName and newName are required"},
		{map[string]interface{}{"oldName": "users", "newName": 7}, http.StatusBadRequest, "Both oldName and newName must be strings"},
		{map[string]interface{}{"oldName": "users", "newName": "users"}, http.StatusBadRequest, "oldName and newName cannot be the same"},
		{map[string]interface{}{"oldName": "users", "newName": "a.b"}, http.StatusBadRequest, "newName cannot contain a dot (.)"},
		{map[string]interface{}{"oldName": "users", "newName": "ab"}, http.StatusBadRequest, "oldName and newName must be at least 3 characters long"},
		{map[string]interface{}{"oldName": "ghosts", "newName": "people"}, http.StatusNotFound, `Collection "ghosts" not found.`},
	}
	for _, tc := range cases {
		status, env := do(t, app, http.MethodPut, "/api/collections/rename", tc.body)
		if status != tc.status || env.Message != tc.message {
			t.Fatalf("body %#v: got %d %q, want %d %q", tc.body, status, env.Message, tc.status, tc.message)
		}
	}

	status, env := do(t, app, http.MethodPut, "/api/collections/rename", map[string]interface{}{
		"oldName": "users", "newName": "people",
	})
	if status != http.StatusOK || !env.Success {
		t.Fatalf("rename failed: %d %s", status, env.Message)
	}
}

func TestDropAndListCollections(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodGet, "/api/collections", nil)
	if status != http.StatusOK {
		t.Fatalf("list failed: %d", status)
	}
	var collections []docstore.CollectionInfo
	if err := json.Unmarshal(env.Data, &collections); err != nil {
		t.Fatalf("decode collections: %v", err)
	}
	if len(collections) != 1 || collections[0].Name != "users" {
		t.Fatalf("unexpected collections %#v", collections)
	}

	status, env = do(t, app, http.MethodDelete, "/api/collections/drop", nil)
	if status != http.StatusOK || env.Message != "Collection successfully dropped" {
		t.Fatalf("drop failed: %d %q", status, env.Message)
	}

	status, env = do(t, app, http.MethodDelete, "/api/collections/drop", nil)
	if status != http.StatusBadRequest || env.Message != "ns not found" {
		t.Fatalf("expected ns not found, got %d %q", status, env.Message)
	}
}

func TestResetAndSeed(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodDelete, "/api/reset", nil)
	if status != http.StatusOK || env.Message != "Database reset" {
		t.Fatalf("reset failed: %d %q", status, env.Message)
	}

	status, env = do(t, app, http.MethodGet, "/api/all", nil)
	if status != http.StatusOK {
		t.Fatalf("all failed: %d", status)
	}
	var users []map[string]interface{}
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty collection after reset, got %d", len(users))
	}
}

func TestBulkWriteEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodPost, "/api/users/bulk", map[string]interface{}{
		"operations": "nope",
	})
	if status != http.StatusBadRequest || env.Message != "Operations (param) is required and must be an array" {
		t.Fatalf("expected operations validation failure, got %d %q", status, env.Message)
	}

	status, env = do(t, app, http.MethodPost, "/api/users/bulk", map[string]interface{}{
		"operations": []interface{}{
			map[string]interface{}{"deleteMany": map[string]interface{}{
				"filter": map[string]interface{}{"city": "Chicago"},
			}},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("bulk failed: %d %s", status, env.Message)
	}
	var result docstore.BulkResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.DeletedCount != 2 {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestFindAndUpdateReturnsDocument(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodPut, "/api/users/findAndUpdate", map[string]interface{}{
		"filter": map[string]interface{}{"name": "Bob"},
		"update": map[string]interface{}{"$set": map[string]interface{}{"age": 36}},
	})
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d (%s)", status, env.Message)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("decode doc: %v", err)
	}
	if age, _ := doc["age"].(float64); age != 36 {
		t.Fatalf("expected post-image by default, got %#v", doc)
	}
}

func TestAggregateDefaultPipeline(t *testing.T) {
	app, _ := newTestApp(t)
	seedApp(t, app)

	status, env := do(t, app, http.MethodGet, "/api/users/aggregate", nil)
	if status != http.StatusOK {
		t.Fatalf("aggregate failed: %d %s", status, env.Message)
	}
	var groups []map[string]interface{}
	if err := json.Unmarshal(env.Data, &groups); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 city groups, got %#v", groups)
	}
}

func TestRootHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("up and running")) {
		t.Fatalf("unexpected body %q", body)
	}
}
