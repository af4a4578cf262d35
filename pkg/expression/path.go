package expression

import (
	"regexp"
	"strconv"
	"strings"
)

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*(\.[A-Za-z0-9_\-]+)*$`)

// IsPath reports whether s is a plain dotted path such as "triggerData.customer.email".
func IsPath(s string) bool {
	return pathPattern.MatchString(s)
}

// Lookup resolves a dotted path against a value. Numeric segments index into
// arrays; any other segment applied to an array is mapped over its elements, so
// "contacts.email" on a list of contacts yields the list of their emails.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}

	current := root

	for _, segment := range strings.Split(path, ".") {
		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func step(current any, segment string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		value, ok := v[segment]

		return value, ok
	case map[string]string:
		value, ok := v[segment]

		return value, ok
	case []any:
		if idx, err := strconv.Atoi(segment); err == nil {
			if idx < 0 || idx >= len(v) {
				return nil, false
			}

			return v[idx], true
		}

		projected := make([]any, 0, len(v))

		for _, item := range v {
			if value, ok := step(item, segment); ok {
				projected = append(projected, value)
			}
		}

		return projected, true
	case []map[string]any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}

		return step(items, segment)
	default:
		return nil, false
	}
}

// SetPath writes value at a dotted path inside doc, creating intermediate maps.
func SetPath(doc map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}

		current = next
	}

	current[segments[len(segments)-1]] = value
}
