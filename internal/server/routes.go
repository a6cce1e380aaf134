package server

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/reqlab/reqlab/internal/docstore"
)

func registerRoutes(api fiber.Router, store *docstore.Store) {
	// insertOne
	api.Post("/users", func(c *fiber.Ctx) error {
		var doc docstore.Document
		if err := decodeBody(c, &doc); err != nil {
			return failErr(c, err)
		}
		inserted, err := store.InsertOne(c.Context(), doc)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusCreated, inserted)
	})

	// insertMany
	api.Post("/users/batch", func(c *fiber.Ctx) error {
		var docs []docstore.Document
		if err := decodeBody(c, &docs); err != nil {
			return failErr(c, err)
		}
		inserted, err := store.InsertMany(c.Context(), docs)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusCreated, inserted)
	})

	// find
	api.Get("/users", func(c *fiber.Ctx) error {
		var filter docstore.Document
		if err := decodeBody(c, &filter); err != nil {
			return failErr(c, err)
		}
		docs, err := store.Find(c.Context(), filter, docstore.FindOptions{})
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, docs)
	})

	// findOne
	api.Get("/users/one", func(c *fiber.Ctx) error {
		var filter docstore.Document
		if err := decodeBody(c, &filter); err != nil {
			return failErr(c, err)
		}
		doc, err := store.FindOne(c.Context(), filter)
		if errors.Is(err, docstore.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "User not found")
		}
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, doc)
	})

	// find().limit()
	api.Get("/users/limit", func(c *fiber.Ctx) error {
		var body map[string]interface{}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		raw, present := body["limit"]
		if !present || raw == nil {
			return fail(c, fiber.StatusBadRequest, "Limit (param) is required")
		}
		limit, numeric := asInt(raw)
		if !numeric {
			return fail(c, fiber.StatusBadRequest, "Limit must be a number")
		}
		if limit < 0 {
			return fail(c, fiber.StatusBadRequest, "Limit must be a positive number or zero")
		}
		docs, err := store.Find(c.Context(), docstore.Document{}, docstore.FindOptions{Limit: &limit})
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, docs)
	})

	// find().skip()
	api.Get("/users/skip", func(c *fiber.Ctx) error {
		var body map[string]interface{}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		raw, present := body["skip"]
		if !present || raw == nil {
			return fail(c, fiber.StatusBadRequest, "Skip (param) is required")
		}
		skip, numeric := asInt(raw)
		if !numeric {
			return fail(c, fiber.StatusBadRequest, "Skip must be a number")
		}
		if skip < 0 {
			return fail(c, fiber.StatusBadRequest, "Skip must be a positive number or zero")
		}
		docs, err := store.Find(c.Context(), docstore.Document{}, docstore.FindOptions{Skip: skip})
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, docs)
	})

	// find().sort()
	api.Get("/users/sort", func(c *fiber.Ctx) error {
		var body map[string]interface{}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		docs, err := store.Find(c.Context(), docstore.Document{}, docstore.FindOptions{Sort: sortSpec(body)})
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, docs)
	})

	// distinct: responds exactly once whether or not a query is supplied
	api.Get("/users/distinct", func(c *fiber.Ctx) error {
		var body struct {
			Field interface{} `json:"field"`
			Query interface{} `json:"query"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		if body.Field == nil {
			return fail(c, fiber.StatusBadRequest, "Field (param) is required")
		}
		field, isString := body.Field.(string)
		if !isString || field == "" {
			return fail(c, fiber.StatusBadRequest, "Field must be a string")
		}

		filter := docstore.Document{}
		if body.Query != nil {
			query, isObject := body.Query.(map[string]interface{})
			if !isObject {
				return fail(c, fiber.StatusBadRequest, "Query must be an object")
			}
			filter = docstore.Document(query)
		}
		values, err := store.Distinct(c.Context(), field, filter)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, values)
	})

	// countDocuments
	api.Get("/users/count", func(c *fiber.Ctx) error {
		var filter docstore.Document
		if err := decodeBody(c, &filter); err != nil {
			return failErr(c, err)
		}
		count, err := store.Count(c.Context(), filter)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, count)
	})

	// updateOne
	api.Put("/users/one", func(c *fiber.Ctx) error {
		filter, update, err := filterAndField(c, "update")
		if err != nil {
			return failErr(c, err)
		}
		result, err := store.UpdateOne(c.Context(), filter, update)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// updateMany
	api.Put("/users/many", func(c *fiber.Ctx) error {
		filter, update, err := filterAndField(c, "update")
		if err != nil {
			return failErr(c, err)
		}
		result, err := store.UpdateMany(c.Context(), filter, update)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// replaceOne
	api.Put("/users/replace", func(c *fiber.Ctx) error {
		filter, replacement, err := filterAndField(c, "replacement")
		if err != nil {
			return failErr(c, err)
		}
		result, err := store.ReplaceOne(c.Context(), filter, replacement)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// deleteOne
	api.Delete("/users/one", func(c *fiber.Ctx) error {
		filter, _, err := filterAndField(c, "")
		if err != nil {
			return failErr(c, err)
		}
		result, err := store.DeleteOne(c.Context(), filter)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// deleteMany
	api.Delete("/users/many", func(c *fiber.Ctx) error {
		filter, _, err := filterAndField(c, "")
		if err != nil {
			return failErr(c, err)
		}
		result, err := store.DeleteMany(c.Context(), filter)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// aggregate: pipeline comes from the query string, defaults to a
	// group-by-city count
	api.Get("/users/aggregate", func(c *fiber.Ctx) error {
		pipeline := []docstore.Document{
			{"$group": map[string]interface{}{
				"_id":   "$city",
				"count": map[string]interface{}{"$sum": float64(1)},
			}},
		}
		if raw := c.Query("pipeline"); raw != "" {
			pipeline = pipeline[:0]
			if err := json.Unmarshal([]byte(raw), &pipeline); err != nil {
				return fail(c, fiber.StatusBadRequest, "decode pipeline: "+err.Error())
			}
		}
		results, err := store.Aggregate(c.Context(), pipeline)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, results)
	})

	// createIndex
	api.Post("/users/index", func(c *fiber.Ctx) error {
		var body struct {
			Field   interface{}            `json:"field"`
			Options map[string]interface{} `json:"options"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		field, isString := body.Field.(string)
		if !isString || field == "" {
			return fail(c, fiber.StatusBadRequest, "Field (param) is required and must be a string")
		}
		if body.Options == nil {
			return fail(c, fiber.StatusBadRequest, "Options (param) is required and must be an object")
		}
		unique, _ := body.Options["unique"].(bool)
		name, err := store.CreateIndex(c.Context(), field, unique)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, name)
	})

	// dropIndex
	api.Delete("/users/index", func(c *fiber.Ctx) error {
		var body struct {
			IndexName string `json:"indexName"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		result, err := store.DropIndex(c.Context(), body.IndexName)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// getIndexes
	api.Get("/users/indexes", func(c *fiber.Ctx) error {
		indexes, err := store.Indexes(c.Context())
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, indexes)
	})

	// findOneAndUpdate
	api.Put("/users/findAndUpdate", func(c *fiber.Ctx) error {
		var body struct {
			Filter  docstore.Document      `json:"filter"`
			Update  docstore.Document      `json:"update"`
			Options map[string]interface{} `json:"options"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		doc, err := store.FindOneAndUpdate(c.Context(), orEmpty(body.Filter), orEmpty(body.Update), returnAfter(body.Options))
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, doc)
	})

	// findOneAndDelete
	api.Delete("/users/findAndDelete", func(c *fiber.Ctx) error {
		filter, _, err := filterAndField(c, "")
		if err != nil {
			return failErr(c, err)
		}
		doc, err := store.FindOneAndDelete(c.Context(), filter)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, doc)
	})

	// bulkWrite
	api.Post("/users/bulk", func(c *fiber.Ctx) error {
		var body struct {
			Operations interface{} `json:"operations"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		rawOps, isArray := body.Operations.([]interface{})
		if !isArray {
			return fail(c, fiber.StatusBadRequest, "Operations (param) is required and must be an array")
		}
		operations := make([]docstore.Document, 0, len(rawOps))
		for _, rawOp := range rawOps {
			op, isObject := rawOp.(map[string]interface{})
			if !isObject {
				return fail(c, fiber.StatusBadRequest, "Operations (param) is required and must be an array")
			}
			operations = append(operations, docstore.Document(op))
		}
		result, err := store.BulkWrite(c.Context(), operations)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, result)
	})

	// findOneAndReplace
	api.Put("/users/findAndReplace", func(c *fiber.Ctx) error {
		var body struct {
			Filter      docstore.Document      `json:"filter"`
			Replacement docstore.Document      `json:"replacement"`
			Options     map[string]interface{} `json:"options"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		doc, err := store.FindOneAndReplace(c.Context(), orEmpty(body.Filter), orEmpty(body.Replacement), returnAfter(body.Options))
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, doc)
	})

	// renameCollection
	api.Put("/collections/rename", func(c *fiber.Ctx) error {
		var body struct {
			OldName interface{} `json:"oldName"`
			NewName interface{} `json:"newName"`
		}
		if err := decodeBody(c, &body); err != nil {
			return failErr(c, err)
		}
		if body.OldName == nil || body.NewName == nil {
			return fail(c, fiber.StatusBadRequest, "Both oldName and newName are required")
		}
		oldName, oldIsString := body.OldName.(string)
		newName, newIsString := body.NewName.(string)
		if !oldIsString || !newIsString {
			return fail(c, fiber.StatusBadRequest, "Both oldName and newName must be strings")
		}
		if oldName == "" || newName == "" {
			return fail(c, fiber.StatusBadRequest, "Both oldName and newName are required")
		}
		if oldName == newName {
			return fail(c, fiber.StatusBadRequest, "oldName and newName cannot be the same")
		}
		if strings.Contains(oldName, ".") {
			return fail(c, fiber.StatusBadRequest, "oldName cannot contain a dot (.)")
		}
		if strings.Contains(newName, ".") {
			return fail(c, fiber.StatusBadRequest, "newName cannot contain a dot (.)")
		}
		if len(newName) < 3 || len(oldName) < 3 {
			return fail(c, fiber.StatusBadRequest, "oldName and newName must be at least 3 characters long")
		}

		err := store.RenameCollection(c.Context(), oldName, newName)
		if errors.Is(err, docstore.ErrCollectionNotFound) {
			return fail(c, fiber.StatusNotFound, fmt.Sprintf("Collection %q not found.", oldName))
		}
		if errors.Is(err, docstore.ErrCollectionExists) {
			return fail(c, fiber.StatusBadRequest, fmt.Sprintf("Collection %q already exists.", newName))
		}
		if err != nil {
			return failErr(c, err)
		}
		return okMessage(c, fiber.StatusOK, fmt.Sprintf(
			"Collection renamed successfully from %q to %q", oldName, newName,
		))
	})

	// drop
	api.Delete("/collections/drop", func(c *fiber.Ctx) error {
		if err := store.DropCollection(c.Context()); err != nil {
			if isNotFound(err) {
				return fail(c, fiber.StatusBadRequest, "ns not found")
			}
			return failErr(c, err)
		}
		return okMessage(c, fiber.StatusOK, "Collection successfully dropped")
	})

	// listCollections
	api.Get("/collections", func(c *fiber.Ctx) error {
		collections, err := store.ListCollections(c.Context())
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, collections)
	})

	api.Delete("/reset", func(c *fiber.Ctx) error {
		if err := store.Reset(c.Context()); err != nil {
			return failErr(c, err)
		}
		return okMessage(c, fiber.StatusOK, "Database reset")
	})

	api.Post("/seed", func(c *fiber.Ctx) error {
		users, err := store.Seed(c.Context())
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, users)
	})

	api.Get("/all", func(c *fiber.Ctx) error {
		users, err := store.All(c.Context())
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, fiber.StatusOK, users)
	})
}

// filterAndField decodes {filter, <field>} bodies where both default to the
// empty document.
func filterAndField(c *fiber.Ctx, field string) (docstore.Document, docstore.Document, error) {
	var body map[string]interface{}
	if err := decodeBody(c, &body); err != nil {
		return nil, nil, err
	}
	filter := docstore.Document{}
	if raw, ok := body["filter"].(map[string]interface{}); ok {
		filter = docstore.Document(raw)
	}
	value := docstore.Document{}
	if field != "" {
		if raw, ok := body[field].(map[string]interface{}); ok {
			value = docstore.Document(raw)
		}
	}
	return filter, value, nil
}

func orEmpty(doc docstore.Document) docstore.Document {
	if doc == nil {
		return docstore.Document{}
	}
	return doc
}

// returnAfter mirrors the default {returnDocument: "after"} option.
func returnAfter(options map[string]interface{}) bool {
	if options == nil {
		return true
	}
	mode, _ := options["returnDocument"].(string)
	return mode != "before"
}
