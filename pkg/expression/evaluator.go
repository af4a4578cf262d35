// Package expression evaluates the condition/value query language used by
// workflow conditions, trigger data filters and seed descriptors.
//
// An expression node is a literal, a "$field" path into the evaluation subject,
// the reserved token "$$NOW", an array of nodes, or an operator object with
// exactly one "$op" key whose value is the operand list.
package expression

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukex/packflow/pkg/models"
)

// NowToken resolves to the evaluation wall-clock time.
const NowToken = "$$NOW"

// Seed-only descriptors. They are resolved by the seed loader and are rejected
// by the evaluator.
const (
	OpFind = "$find"
	OpLink = "$link"
)

type operator func(s *state, operand any, path string) (any, error)

var operators map[string]operator

func init() {
	operators = map[string]operator{
		"$eq":         binaryOp(func(a, b any) (any, error) { return Equal(a, b), nil }),
		"$ne":         binaryOp(func(a, b any) (any, error) { return !Equal(a, b), nil }),
		"$gt":         binaryOp(func(a, b any) (any, error) { c, ok := Compare(a, b); return ok && c > 0, nil }),
		"$lt":         binaryOp(func(a, b any) (any, error) { c, ok := Compare(a, b); return ok && c < 0, nil }),
		"$in":         opIn,
		"$and":        opAnd,
		"$or":         opOr,
		"$not":        opNot,
		"$size":       opSize,
		"$type":       opType,
		"$subtract":   binaryOp(subtract),
		"$toObjectId": opToObjectID,
		"$ifNull":     opIfNull,
	}
}

// Operators returns the names of every operator the evaluator understands.
func Operators() []string {
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Evaluator evaluates expression nodes against a subject.
type Evaluator struct {
	now func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the clock used for $$NOW.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

type state struct {
	subject map[string]any
	now     time.Time
}

// Evaluate evaluates expr against subject. $$NOW is captured once per call.
func (e *Evaluator) Evaluate(expr any, subject map[string]any) (any, error) {
	s := &state{subject: subject, now: e.now().UTC()}

	return s.eval(expr, "")
}

// Test evaluates a predicate. An absent (nil) expression is true.
func (e *Evaluator) Test(expr any, subject map[string]any) (bool, error) {
	if expr == nil {
		return true, nil
	}

	value, err := e.Evaluate(expr, subject)
	if err != nil {
		return false, err
	}

	return Truthy(value), nil
}

// Validate walks expr and reports malformed or unknown operators without
// evaluating anything. Used for pre-flight checks of step conditions.
func Validate(expr any) error {
	return validate(expr, "")
}

func validate(expr any, path string) error {
	switch v := expr.(type) {
	case map[string]any:
		op, operand, isOp, err := splitOperator(v, path)
		if err != nil {
			return err
		}

		if isOp {
			if _, known := operators[op]; !known {
				return models.NewValidationError(path, "unknown operator %q", op)
			}

			return validate(operand, join(path, op))
		}

		for k, child := range v {
			if err := validate(child, join(path, k)); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range v {
			if err := validate(child, join(path, fmt.Sprint(i))); err != nil {
				return err
			}
		}
	case string:
		if strings.HasPrefix(v, "$$") && v != NowToken {
			return models.NewValidationError(path, "unknown reserved token %q", v)
		}
	}

	return nil
}

func (s *state) eval(expr any, path string) (any, error) {
	switch v := expr.(type) {
	case string:
		return s.evalString(v, path)
	case map[string]any:
		op, operand, isOp, err := splitOperator(v, path)
		if err != nil {
			return nil, err
		}

		if !isOp {
			out := make(map[string]any, len(v))

			for k, child := range v {
				value, err := s.eval(child, join(path, k))
				if err != nil {
					return nil, err
				}

				out[k] = value
			}

			return out, nil
		}

		fn, known := operators[op]
		if !known {
			if op == OpFind || op == OpLink {
				return nil, models.NewValidationError(path, "%s is only valid in seed data", op)
			}

			return nil, models.NewValidationError(path, "unknown operator %q", op)
		}

		return fn(s, operand, join(path, op))
	case []any:
		out := make([]any, len(v))

		for i, child := range v {
			value, err := s.eval(child, join(path, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}

			out[i] = value
		}

		return out, nil
	default:
		return expr, nil
	}
}

func (s *state) evalString(v, path string) (any, error) {
	switch {
	case v == NowToken:
		return s.now, nil
	case strings.HasPrefix(v, "$$"):
		return nil, models.NewValidationError(path, "unknown reserved token %q", v)
	case strings.HasPrefix(v, "$") && len(v) > 1:
		value, _ := Lookup(s.subject, v[1:])

		return value, nil
	default:
		return v, nil
	}
}

// splitOperator detects an operator object. Maps mixing operator keys with
// other keys, or holding several operators, are malformed.
func splitOperator(m map[string]any, path string) (string, any, bool, error) {
	var ops []string

	for k := range m {
		if strings.HasPrefix(k, "$") {
			ops = append(ops, k)
		}
	}

	switch {
	case len(ops) == 0:
		return "", nil, false, nil
	case len(m) > 1:
		return "", nil, false, models.NewValidationError(path, "operator object must have exactly one key, got %d", len(m))
	default:
		return ops[0], m[ops[0]], true, nil
	}
}

func (s *state) operands(operand any, path string, want int) ([]any, error) {
	list, ok := operand.([]any)
	if !ok {
		if want == 1 {
			list = []any{operand}
		} else {
			return nil, models.NewValidationError(path, "expected an array of %d operands", want)
		}
	}

	if want > 0 && len(list) != want {
		return nil, models.NewValidationError(path, "expected %d operands, got %d", want, len(list))
	}

	values := make([]any, len(list))

	for i, item := range list {
		value, err := s.eval(item, join(path, fmt.Sprint(i)))
		if err != nil {
			return nil, err
		}

		values[i] = value
	}

	return values, nil
}

func binaryOp(fn func(a, b any) (any, error)) operator {
	return func(s *state, operand any, path string) (any, error) {
		args, err := s.operands(operand, path, 2)
		if err != nil {
			return nil, err
		}

		result, err := fn(args[0], args[1])
		if err != nil {
			return nil, models.NewValidationError(path, "%v", err)
		}

		return result, nil
	}
}

func opIn(s *state, operand any, path string) (any, error) {
	args, err := s.operands(operand, path, 2)
	if err != nil {
		return nil, err
	}

	list, ok := args[1].([]any)
	if !ok {
		return nil, models.NewValidationError(path, "second operand of $in must be an array, got %T", args[1])
	}

	for _, item := range list {
		if Equal(args[0], item) {
			return true, nil
		}
	}

	return false, nil
}

func logicalList(operand any, path string) ([]any, error) {
	list, ok := operand.([]any)
	if !ok || len(list) == 0 {
		return nil, models.NewValidationError(path, "expected a non-empty array of operands")
	}

	return list, nil
}

func opAnd(s *state, operand any, path string) (any, error) {
	list, err := logicalList(operand, path)
	if err != nil {
		return nil, err
	}

	for i, item := range list {
		value, err := s.eval(item, join(path, fmt.Sprint(i)))
		if err != nil {
			return nil, err
		}

		if !Truthy(value) {
			return false, nil
		}
	}

	return true, nil
}

func opOr(s *state, operand any, path string) (any, error) {
	list, err := logicalList(operand, path)
	if err != nil {
		return nil, err
	}

	for i, item := range list {
		value, err := s.eval(item, join(path, fmt.Sprint(i)))
		if err != nil {
			return nil, err
		}

		if Truthy(value) {
			return true, nil
		}
	}

	return false, nil
}

func opNot(s *state, operand any, path string) (any, error) {
	args, err := s.operands(operand, path, 1)
	if err != nil {
		return nil, err
	}

	return !Truthy(args[0]), nil
}

func opSize(s *state, operand any, path string) (any, error) {
	args, err := s.operands(operand, path, 1)
	if err != nil {
		return nil, err
	}

	switch v := args[0].(type) {
	case []any:
		return len(v), nil
	case []map[string]any:
		return len(v), nil
	default:
		return nil, models.NewValidationError(path, "$size requires an array, got %s", TypeName(args[0]))
	}
}

func opType(s *state, operand any, path string) (any, error) {
	args, err := s.operands(operand, path, 1)
	if err != nil {
		return nil, err
	}

	return TypeName(args[0]), nil
}

func opIfNull(s *state, operand any, path string) (any, error) {
	args, err := s.operands(operand, path, 2)
	if err != nil {
		return nil, err
	}

	if args[0] != nil {
		return args[0], nil
	}

	return args[1], nil
}

func opToObjectID(s *state, operand any, path string) (any, error) {
	args, err := s.operands(operand, path, 1)
	if err != nil {
		return nil, err
	}

	id, err := ToObjectID(args[0])
	if err != nil {
		return nil, models.NewValidationError(path, "%v", err)
	}

	return id, nil
}

func join(path, segment string) string {
	if path == "" {
		return segment
	}

	return path + "." + segment
}
