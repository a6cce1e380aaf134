package docstore

import (
	"context"

	"github.com/reqlab/reqlab/internal/errdef"
)

type BulkResult struct {
	Acknowledged  bool `json:"acknowledged"`
	InsertedCount int  `json:"insertedCount"`
	MatchedCount  int  `json:"matchedCount"`
	ModifiedCount int  `json:"modifiedCount"`
	DeletedCount  int  `json:"deletedCount"`
	UpsertedCount int  `json:"upsertedCount"`
}

// BulkWrite executes operations in order. Each operation is an object with a
// single key naming the op: insertOne, updateOne, updateMany, replaceOne,
// deleteOne or deleteMany.
func (s *Store) BulkWrite(ctx context.Context, operations []Document) (BulkResult, error) {
	result := BulkResult{Acknowledged: true}

	for _, operation := range operations {
		if len(operation) != 1 {
			return BulkResult{}, errdef.New(
				errdef.CodeParse,
				"bulk operation must contain exactly one operator",
			)
		}
		for name, rawSpec := range operation {
			spec, ok := rawSpec.(map[string]interface{})
			if !ok {
				return BulkResult{}, errdef.New(errdef.CodeParse, "bulk %s spec must be an object", name)
			}
			switch name {
			case "insertOne":
				doc, ok := spec["document"].(map[string]interface{})
				if !ok {
					return BulkResult{}, errdef.New(errdef.CodeParse, "insertOne requires a document")
				}
				if _, err := s.InsertOne(ctx, Document(doc)); err != nil {
					return BulkResult{}, err
				}
				result.InsertedCount++
			case "updateOne", "updateMany":
				filter := asDocument(spec["filter"])
				update := asDocument(spec["update"])
				var (
					updated UpdateResult
					err     error
				)
				if name == "updateOne" {
					updated, err = s.UpdateOne(ctx, filter, update)
				} else {
					updated, err = s.UpdateMany(ctx, filter, update)
				}
				if err != nil {
					return BulkResult{}, err
				}
				result.MatchedCount += updated.MatchedCount
				result.ModifiedCount += updated.ModifiedCount
			case "replaceOne":
				updated, err := s.ReplaceOne(ctx, asDocument(spec["filter"]), asDocument(spec["replacement"]))
				if err != nil {
					return BulkResult{}, err
				}
				result.MatchedCount += updated.MatchedCount
				result.ModifiedCount += updated.ModifiedCount
			case "deleteOne", "deleteMany":
				filter := asDocument(spec["filter"])
				var (
					deleted DeleteResult
					err     error
				)
				if name == "deleteOne" {
					deleted, err = s.DeleteOne(ctx, filter)
				} else {
					deleted, err = s.DeleteMany(ctx, filter)
				}
				if err != nil {
					return BulkResult{}, err
				}
				result.DeletedCount += deleted.DeletedCount
			default:
				return BulkResult{}, errdef.New(errdef.CodeParse, "unsupported bulk operation %q", name)
			}
		}
	}
	return result, nil
}

func asDocument(v interface{}) Document {
	if doc, ok := v.(map[string]interface{}); ok {
		return Document(doc)
	}
	return Document{}
}
