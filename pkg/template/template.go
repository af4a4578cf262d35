// Package template substitutes {path.to.value} placeholders inside action
// configuration. A placeholder whose inner text is not a plain path but holds
// operator syntax ("$field", "$$NOW" or a JSON operator object) is handed to the
// expression evaluator.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
)

// Interpolator renders templates against an evaluation subject.
type Interpolator struct {
	eval *expression.Evaluator
}

// New creates an Interpolator. A nil evaluator uses the default clock.
func New(eval *expression.Evaluator) *Interpolator {
	if eval == nil {
		eval = expression.New()
	}

	return &Interpolator{eval: eval}
}

// RenderWithContext interpolates value against the subject exposed by an
// execution context.
func (i *Interpolator) RenderWithContext(value any, executionCtx *models.ExecutionContext) (any, error) {
	return i.Interpolate(value, executionCtx.Subject())
}

// Interpolate walks maps and arrays and renders every string leaf. Other leaves
// pass through unchanged. Substituted values are never re-scanned.
func (i *Interpolator) Interpolate(value any, subject map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return i.render(v, subject)
	case map[string]any:
		out := make(map[string]any, len(v))

		for k, child := range v {
			rendered, err := i.Interpolate(child, subject)
			if err != nil {
				return nil, err
			}

			out[k] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for idx, child := range v {
			rendered, err := i.Interpolate(child, subject)
			if err != nil {
				return nil, err
			}

			out[idx] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// String renders s and always returns text.
func (i *Interpolator) String(s string, subject map[string]any) (string, error) {
	rendered, err := i.render(s, subject)
	if err != nil {
		return "", err
	}

	return Stringify(rendered), nil
}

// Map renders a configuration object.
func (i *Interpolator) Map(config map[string]any, subject map[string]any) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}

	rendered, err := i.Interpolate(config, subject)
	if err != nil {
		return nil, err
	}

	return rendered.(map[string]any), nil
}

// HasPlaceholders reports whether s contains at least one substitutable span.
func HasPlaceholders(s string) bool {
	for pos := 0; pos < len(s); pos++ {
		if s[pos] != '{' {
			continue
		}

		end := closingBrace(s, pos)
		if end < 0 {
			return false
		}

		if kindOf(strings.TrimSpace(s[pos+1:end])) != spanLiteral {
			return true
		}
	}

	return false
}

type spanKind int

const (
	spanLiteral spanKind = iota
	spanPath
	spanExpression
)

func kindOf(inner string) spanKind {
	switch {
	case inner == "":
		return spanLiteral
	case expression.IsPath(inner):
		return spanPath
	case strings.HasPrefix(inner, "$"):
		return spanExpression
	case (strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[")) && strings.Contains(inner, `"$`):
		return spanExpression
	default:
		return spanLiteral
	}
}

func (i *Interpolator) render(s string, subject map[string]any) (any, error) {
	if !strings.Contains(s, "{") {
		return s, nil
	}

	var out strings.Builder

	for pos := 0; pos < len(s); {
		if s[pos] != '{' {
			out.WriteByte(s[pos])
			pos++

			continue
		}

		end := closingBrace(s, pos)
		if end < 0 {
			out.WriteString(s[pos:])

			break
		}

		inner := strings.TrimSpace(s[pos+1 : end])

		value, ok, err := i.resolve(inner, subject)
		if err != nil {
			return nil, err
		}

		if !ok {
			out.WriteByte('{')
			pos++

			continue
		}

		if pos == 0 && end == len(s)-1 {
			return value, nil
		}

		out.WriteString(Stringify(value))
		pos = end + 1
	}

	return out.String(), nil
}

// resolve returns ok=false when the span is literal text rather than a placeholder.
func (i *Interpolator) resolve(inner string, subject map[string]any) (any, bool, error) {
	switch kindOf(inner) {
	case spanPath:
		value, _ := expression.Lookup(subject, inner)

		return value, true, nil
	case spanExpression:
		expr := any(inner)

		if !strings.HasPrefix(inner, "$") {
			if err := json.Unmarshal([]byte(inner), &expr); err != nil {
				return nil, false, models.NewValidationError(inner, "invalid expression placeholder: %v", err)
			}
		}

		value, err := i.eval.Evaluate(expr, subject)
		if err != nil {
			return nil, false, err
		}

		return value, true, nil
	default:
		return nil, false, nil
	}
}

// closingBrace finds the brace matching s[start], ignoring braces inside
// double-quoted strings. It returns -1 when the span is not closed.
func closingBrace(s string, start int) int {
	depth := 0
	inQuote := false

	for pos := start; pos < len(s); pos++ {
		c := s[pos]

		if inQuote {
			switch c {
			case '\\':
				pos++
			case '"':
				inQuote = false
			}

			continue
		}

		switch c {
		case '"':
			inQuote = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return pos
			}
		}
	}

	return -1
}

// Stringify renders a substituted value for embedding in surrounding text.
// Missing values become the empty string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case expression.ObjectID:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case map[string]any, []any, []map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}
