// Package datastore provides data-store collaborators: an in-memory store, a
// PostgreSQL JSONB store and a decorator that reports mutations as occurrences.
package datastore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
)

// IDField is the identifier field of every record.
const IDField = "_id"

// Match reports whether record satisfies a field-match filter such as
// {"status": "pending", "amount": {"$gt": 10}, "$or": [...]}.
func Match(record map[string]any, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)

		switch key {
		case "$and", "$or":
			ok, err = matchLogical(record, key, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, models.NewValidationError(key, "unsupported filter operator")
			}

			ok, err = matchField(record, key, cond)
		}

		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func matchLogical(record map[string]any, op string, cond any) (bool, error) {
	clauses, ok := cond.([]any)
	if !ok || len(clauses) == 0 {
		return false, models.NewValidationError(op, "expected a non-empty array of filters")
	}

	for _, clause := range clauses {
		sub, ok := clause.(map[string]any)
		if !ok {
			return false, models.NewValidationError(op, "expected a filter object, got %T", clause)
		}

		matched, err := Match(record, sub)
		if err != nil {
			return false, err
		}

		if op == "$or" && matched {
			return true, nil
		}

		if op == "$and" && !matched {
			return false, nil
		}
	}

	return op == "$and", nil
}

func matchField(record map[string]any, field string, cond any) (bool, error) {
	value, exists := expression.Lookup(record, field)

	ops, isOps := cond.(map[string]any)
	if !isOps || !hasOperatorKeys(ops) {
		return equalOrContains(value, cond), nil
	}

	for op, operand := range ops {
		matched, err := applyOperator(op, value, exists, operand, field)
		if err != nil || !matched {
			return false, err
		}
	}

	return true, nil
}

func applyOperator(op string, value any, exists bool, operand any, field string) (bool, error) {
	switch op {
	case "$eq":
		return equalOrContains(value, operand), nil
	case "$ne":
		return !equalOrContains(value, operand), nil
	case "$gt", "$gte", "$lt", "$lte":
		c, ok := expression.Compare(value, operand)
		if !ok {
			return false, nil
		}

		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, ok := operand.([]any)
		if !ok {
			return false, models.NewValidationError(field+"."+op, "expected an array, got %T", operand)
		}

		found := false

		for _, candidate := range list {
			if equalOrContains(value, candidate) {
				found = true

				break
			}
		}

		return found == (op == "$in"), nil
	case "$exists":
		want := expression.Truthy(operand)

		return exists == want, nil
	default:
		return false, models.NewValidationError(field+"."+op, "unsupported filter operator")
	}
}

func hasOperatorKeys(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}

	return false
}

// equalOrContains applies document-database equality: an array field matches
// a scalar when any element is equal to it.
func equalOrContains(value, want any) bool {
	if expression.Equal(value, want) {
		return true
	}

	if list, ok := value.([]any); ok {
		if _, wantList := want.([]any); !wantList {
			for _, item := range list {
				if expression.Equal(item, want) {
					return true
				}
			}
		}
	}

	return false
}

// equalityPart extracts the top-level scalar equality clauses of a filter.
func equalityPart(filter map[string]any) map[string]any {
	out := map[string]any{}

	for key, cond := range filter {
		if strings.HasPrefix(key, "$") || strings.Contains(key, ".") {
			continue
		}

		switch cond.(type) {
		case string, bool, float64, float32, int, int32, int64:
			out[key] = cond
		}
	}

	return out
}

// ApplyPatch returns a copy of record with patch applied. Patches either use
// the "$set", "$inc" and "$unset" operators or are merged field by field. The
// record identifier never changes.
func ApplyPatch(record map[string]any, patch map[string]any) (map[string]any, error) {
	out := cloneDoc(record)

	if !hasOperatorKeys(patch) {
		for k, v := range patch {
			if k == IDField {
				continue
			}

			out[k] = cloneValue(v)
		}

		return out, nil
	}

	for op, operand := range patch {
		fields, ok := operand.(map[string]any)
		if !ok {
			return nil, models.NewValidationError(op, "expected an object, got %T", operand)
		}

		for path, v := range fields {
			if path == IDField {
				continue
			}

			switch op {
			case "$set":
				expression.SetPath(out, path, cloneValue(v))
			case "$inc":
				delta, ok := expression.ToFloat(v)
				if !ok {
					return nil, models.NewValidationError(op+"."+path, "increment must be numeric")
				}

				current, _ := expression.Lookup(out, path)
				base, _ := expression.ToFloat(current)
				expression.SetPath(out, path, base+delta)
			case "$unset":
				unsetPath(out, path)
			default:
				return nil, models.NewValidationError(op, "unsupported update operator")
			}
		}
	}

	return out, nil
}

func unsetPath(doc map[string]any, path string) {
	segments := strings.Split(path, ".")
	current := doc

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}

		current = next
	}

	delete(current, segments[len(segments)-1])
}

// sortRecords orders records by a field; a leading "-" sorts descending.
func sortRecords(records []map[string]any, spec string) {
	if spec == "" {
		return
	}

	desc := strings.HasPrefix(spec, "-")
	field := strings.TrimPrefix(spec, "-")

	sort.SliceStable(records, func(i, j int) bool {
		a, _ := expression.Lookup(records[i], field)
		b, _ := expression.Lookup(records[j], field)

		c, ok := expression.Compare(a, b)
		if !ok {
			return false
		}

		if desc {
			return c > 0
		}

		return c < 0
	})
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

func recordID(record map[string]any) string {
	switch id := record[IDField].(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
