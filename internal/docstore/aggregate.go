package docstore

import (
	"context"
	"strconv"
	"strings"

	"github.com/reqlab/reqlab/internal/errdef"
)

// Aggregate runs a small pipeline subset: $match, $group (with $sum, $avg,
// $min, $max accumulators), $sort and $limit.
func (s *Store) Aggregate(ctx context.Context, pipeline []Document) ([]Document, error) {
	docs, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, errdef.New(errdef.CodeParse, "pipeline stage must contain exactly one operator")
		}
		for name, rawSpec := range stage {
			switch name {
			case "$match":
				filter := asDocument(rawSpec)
				matched := docs[:0:0]
				for _, doc := range docs {
					ok, err := matchFilter(doc, filter)
					if err != nil {
						return nil, err
					}
					if ok {
						matched = append(matched, doc)
					}
				}
				docs = matched
			case "$group":
				grouped, err := groupStage(docs, asDocument(rawSpec))
				if err != nil {
					return nil, err
				}
				docs = grouped
			case "$sort":
				spec := map[string]int{}
				for field, direction := range asDocument(rawSpec) {
					if n, ok := toNumber(direction); ok {
						spec[field] = int(n)
					}
				}
				sortDocuments(docs, spec)
			case "$limit":
				n, ok := toNumber(rawSpec)
				if !ok || n < 0 {
					return nil, errdef.New(errdef.CodeParse, "$limit must be a non-negative number")
				}
				if limit := int(n); limit < len(docs) {
					docs = docs[:limit]
				}
			default:
				return nil, errdef.New(errdef.CodeParse, "unsupported pipeline stage %q", name)
			}
		}
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func groupStage(docs []Document, spec Document) ([]Document, error) {
	idSpec, ok := spec["_id"]
	if !ok {
		return nil, errdef.New(errdef.CodeParse, "$group requires an _id expression")
	}

	type bucket struct {
		doc    Document
		counts map[string]float64
		sums   map[string]float64
		mins   map[string]interface{}
		maxs   map[string]interface{}
	}

	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for _, doc := range docs {
		key := resolveExpression(idSpec, doc)
		keyText := stringifyKey(key)
		b, seen := buckets[keyText]
		if !seen {
			b = &bucket{
				doc:    Document{"_id": key},
				counts: map[string]float64{},
				sums:   map[string]float64{},
				mins:   map[string]interface{}{},
				maxs:   map[string]interface{}{},
			}
			buckets[keyText] = b
			order = append(order, keyText)
		}

		for field, rawAcc := range spec {
			if field == "_id" {
				continue
			}
			acc, ok := rawAcc.(map[string]interface{})
			if !ok || len(acc) != 1 {
				return nil, errdef.New(errdef.CodeParse, "accumulator for %q must contain one operator", field)
			}
			for op, operand := range acc {
				switch op {
				case "$sum":
					value, _ := toNumber(resolveExpression(operand, doc))
					b.sums[field] += value
					b.doc[field] = b.sums[field]
				case "$avg":
					value, _ := toNumber(resolveExpression(operand, doc))
					b.sums[field] += value
					b.counts[field]++
					b.doc[field] = b.sums[field] / b.counts[field]
				case "$min":
					value := resolveExpression(operand, doc)
					current, seen := b.mins[field]
					if cmp, ok := compareValues(value, current); !seen || (ok && cmp < 0) {
						b.mins[field] = value
						b.doc[field] = value
					}
				case "$max":
					value := resolveExpression(operand, doc)
					current, seen := b.maxs[field]
					if cmp, ok := compareValues(value, current); !seen || (ok && cmp > 0) {
						b.maxs[field] = value
						b.doc[field] = value
					}
				default:
					return nil, errdef.New(errdef.CodeParse, "unsupported accumulator %q", op)
				}
			}
		}
	}

	results := make([]Document, 0, len(order))
	for _, key := range order {
		results = append(results, buckets[key].doc)
	}
	return results, nil
}

// resolveExpression handles field path references ("$city") and constants.
func resolveExpression(expr interface{}, doc Document) interface{} {
	if path, ok := expr.(string); ok && strings.HasPrefix(path, "$") {
		return doc[strings.TrimPrefix(path, "$")]
	}
	return expr
}

func stringifyKey(key interface{}) string {
	if key == nil {
		return "<nil>"
	}
	if text, ok := key.(string); ok {
		return "s:" + text
	}
	if n, ok := toNumber(key); ok {
		return "n:" + strconv.FormatFloat(n, 'g', -1, 64)
	}
	if b, ok := key.(bool); ok {
		if b {
			return "b:true"
		}
		return "b:false"
	}
	return "o:unsupported"
}
