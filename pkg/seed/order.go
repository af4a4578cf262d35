package seed

import (
	"strings"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
)

// dependencyOrder sorts seeds so that every model comes after the models its
// $find descriptors reference. Declared order breaks ties. $link references,
// and the filters inside them, impose no order.
func dependencyOrder(seeds []ModelSeed) ([]ModelSeed, error) {
	position := make(map[string]int, len(seeds))

	for i, s := range seeds {
		if _, dup := position[s.Model]; dup {
			return nil, models.NewValidationError("seed."+s.Model, "model is seeded more than once")
		}

		position[s.Model] = i
	}

	dependsOn := make([]map[int]bool, len(seeds))

	for i, s := range seeds {
		dependsOn[i] = map[int]bool{}

		for _, record := range s.Records {
			collectFinds(record, func(model string) {
				if j, ok := position[model]; ok && j != i {
					dependsOn[i][j] = true
				}
			})
		}
	}

	ordered := make([]ModelSeed, 0, len(seeds))
	done := make([]bool, len(seeds))

	for len(ordered) < len(seeds) {
		progressed := false

		for i, s := range seeds {
			if done[i] || !ready(dependsOn[i], done) {
				continue
			}

			ordered = append(ordered, s)
			done[i] = true
			progressed = true

			break
		}

		if !progressed {
			var stuck []string

			for i, s := range seeds {
				if !done[i] {
					stuck = append(stuck, s.Model)
				}
			}

			return nil, models.NewValidationError("seed", "cyclic %s references between %s; use %s for one side",
				expression.OpFind, strings.Join(stuck, ", "), expression.OpLink)
		}
	}

	return ordered, nil
}

func ready(deps map[int]bool, done []bool) bool {
	for j := range deps {
		if !done[j] {
			return false
		}
	}

	return true
}

func collectFinds(value any, visit func(model string)) {
	switch v := value.(type) {
	case map[string]any:
		// $link bodies, including any $find in their filter, resolve after every model is written.
		if _, ok := v[expression.OpLink]; ok && len(v) == 1 {
			return
		}

		if body, ok := v[expression.OpFind].(map[string]any); ok && len(v) == 1 {
			if model, ok := body[modelTag].(string); ok {
				visit(model)
			}
		}

		for _, child := range v {
			collectFinds(child, visit)
		}
	case []any:
		for _, child := range v {
			collectFinds(child, visit)
		}
	}
}
