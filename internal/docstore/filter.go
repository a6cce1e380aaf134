package docstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reqlab/reqlab/internal/errdef"
)

// matchFilter implements the query subset the sandbox needs: direct equality
// plus the comparison operators $gt/$gte/$lt/$lte/$ne/$in.
func matchFilter(doc Document, filter Document) (bool, error) {
	for field, condition := range filter {
		value := doc[field]
		conditions, hasOperators := operatorMap(condition)
		if !hasOperators {
			if !valuesEqual(value, condition) {
				return false, nil
			}
			continue
		}
		for op, operand := range conditions {
			ok, err := evalOperator(op, value, operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func operatorMap(condition interface{}) (map[string]interface{}, bool) {
	m, ok := condition.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

func evalOperator(op string, value, operand interface{}) (bool, error) {
	switch op {
	case "$ne":
		return !valuesEqual(value, operand), nil
	case "$in":
		candidates, ok := operand.([]interface{})
		if !ok {
			return false, errdef.New(errdef.CodeParse, "$in requires an array")
		}
		for _, candidate := range candidates {
			if valuesEqual(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case "$gt", "$gte", "$lt", "$lte":
		cmp, comparable := compareValues(value, operand)
		if !comparable {
			return false, nil
		}
		switch op {
		case "$gt":
			return cmp > 0, nil
		case "$gte":
			return cmp >= 0, nil
		case "$lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, errdef.New(errdef.CodeParse, "unsupported operator %q", op)
	}
}

func valuesEqual(a, b interface{}) bool {
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
		return false
	}
	return a == b
}

// compareValues orders numbers numerically and strings lexically. Mixed or
// non-orderable types report not comparable, matching query semantics where
// such comparisons simply never match.
func compareValues(a, b interface{}) (int, bool) {
	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	ba, okA := a.(bool)
	bb, okB := b.(bool)
	if okA && okB {
		switch {
		case ba == bb:
			return 0, true
		case bb:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sortDocuments is stable so equal keys keep insertion order. Field order
// within the sort spec is made deterministic by sorting the field names.
func sortDocuments(docs []Document, spec map[string]int) {
	fields := make([]string, 0, len(spec))
	for field := range spec {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range fields {
			direction := spec[field]
			if direction == 0 {
				continue
			}
			cmp, ok := compareValues(docs[i][field], docs[j][field])
			if !ok || cmp == 0 {
				continue
			}
			if direction < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// applyUpdate supports $set plus bare top-level assignment. Reports whether
// any field actually changed.
func applyUpdate(doc Document, update Document) (bool, error) {
	changed := false
	apply := func(fields map[string]interface{}) {
		for key, value := range fields {
			if key == "_id" {
				continue
			}
			if !valuesEqual(doc[key], value) || !sameType(doc[key], value) {
				doc[key] = value
				changed = true
			}
		}
	}

	for key, value := range update {
		if !strings.HasPrefix(key, "$") {
			apply(map[string]interface{}{key: value})
			continue
		}
		switch key {
		case "$set":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return false, errdef.New(errdef.CodeParse, "$set requires an object")
			}
			apply(fields)
		case "$unset":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return false, errdef.New(errdef.CodeParse, "$unset requires an object")
			}
			for field := range fields {
				if _, present := doc[field]; present && field != "_id" {
					delete(doc, field)
					changed = true
				}
			}
		case "$inc":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return false, errdef.New(errdef.CodeParse, "$inc requires an object")
			}
			for field, delta := range fields {
				amount, ok := toNumber(delta)
				if !ok {
					return false, errdef.New(errdef.CodeParse, "$inc value for %q must be numeric", field)
				}
				current, _ := toNumber(doc[field])
				doc[field] = current + amount
				changed = true
			}
		default:
			return false, errdef.New(errdef.CodeParse, "unsupported update operator %q", key)
		}
	}
	return changed, nil
}

func sameType(a, b interface{}) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}
