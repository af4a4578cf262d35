// Package seed bulk-loads pack seed records, resolving $find and $link
// descriptors into record identifiers.
//
// Loading runs in two passes. The first creates every record model by model in
// dependency order, resolving $find immediately against materialized data and
// leaving $link fields empty. The second resolves every pending $link through
// the per-batch natural-key index or the store and patches the created records,
// so forward and cyclic $link references are legal while $find ones are not.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
)

const (
	modelTag = "_model"
	manyTag  = "_many"
	whereTag = "_where"
	fieldTag = "_field"
	idField  = "_id"
)

// ModelSeed is the seed data of one model.
type ModelSeed struct {
	Model string `json:"model" yaml:"model" validate:"required"`
	// Key names the natural-key field. Keyed records are upserted, so loading
	// the same batch twice does not duplicate them.
	Key     string           `json:"key,omitempty" yaml:"key"`
	Records []map[string]any `json:"records"       yaml:"records"`
}

// Result summarizes a load.
type Result struct {
	Created map[string][]string `json:"created"`
	Links   int                 `json:"links"`
}

// Loader resolves and writes seed batches.
type Loader struct {
	store  protocol.DataStore
	eval   *expression.Evaluator
	logger *slog.Logger
}

// NewLoader creates a Loader writing to store.
func NewLoader(store protocol.DataStore, eval *expression.Evaluator, logger *slog.Logger) *Loader {
	if eval == nil {
		eval = expression.New()
	}

	return &Loader{store: store, eval: eval, logger: logger.With("module", "seed")}
}

type descriptor struct {
	op     string
	model  string
	filter map[string]any
	where  any
	field  string
	many   bool
}

type pendingLink struct {
	model    string
	recordID string
	source   string
	path     []any
	desc     *descriptor
}

// batch is the per-load arena: records created so far and the natural-key index.
type batch struct {
	keys    map[string]string
	created map[string][]string
	index   map[string]map[string]string
	pending []pendingLink
}

// Load writes every seed in dependency order and then resolves pending links.
func (l *Loader) Load(ctx context.Context, seeds []ModelSeed) (*Result, error) {
	ordered, err := dependencyOrder(seeds)
	if err != nil {
		return nil, err
	}

	b := &batch{
		keys:    map[string]string{},
		created: map[string][]string{},
		index:   map[string]map[string]string{},
	}

	for _, s := range seeds {
		if s.Key != "" {
			b.keys[s.Model] = s.Key
		}
	}

	for _, s := range ordered {
		if err := l.createModel(ctx, b, s); err != nil {
			return nil, err
		}
	}

	if err := l.resolveLinks(ctx, b); err != nil {
		return nil, err
	}

	return &Result{Created: b.created, Links: len(b.pending)}, nil
}

func (l *Loader) createModel(ctx context.Context, b *batch, s ModelSeed) error {
	logger := l.logger.With("model", s.Model)

	for i, raw := range s.Records {
		path := fmt.Sprintf("%s[%d]", s.Model, i)

		if raw == nil || isExpression(raw) {
			return models.NewValidationError(path, "record must be an object of fields")
		}

		var links []pendingLink

		resolved, err := l.resolveValue(ctx, b, raw, path, nil, &links)
		if err != nil {
			return err
		}

		doc, _ := resolved.(map[string]any)

		var record map[string]any

		if key := s.Key; key != "" && doc[key] != nil {
			record, err = l.store.Upsert(ctx, s.Model, map[string]any{key: doc[key]}, doc)
		} else {
			record, err = l.store.Create(ctx, s.Model, doc)
		}

		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}

		id := fmt.Sprint(record[idField])
		b.created[s.Model] = append(b.created[s.Model], id)

		if key := s.Key; key != "" && record[key] != nil {
			if b.index[s.Model] == nil {
				b.index[s.Model] = map[string]string{}
			}

			b.index[s.Model][fmt.Sprint(record[key])] = id
		}

		for _, link := range links {
			link.model = s.Model
			link.recordID = id
			b.pending = append(b.pending, link)
		}
	}

	logger.DebugContext(ctx, "Seeded model", "records", len(s.Records))

	return nil
}

// resolveValue rewrites $find descriptors and evaluates operator objects.
// $link descriptors are replaced by nil and queued with their location.
func (l *Loader) resolveValue(ctx context.Context, b *batch, value any, path string, at []any, links *[]pendingLink) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		desc, isDesc, err := parseDescriptor(v, path)
		if err != nil {
			return nil, err
		}

		if isDesc {
			if desc.op == expression.OpLink {
				*links = append(*links, pendingLink{source: path, path: append([]any(nil), at...), desc: desc})

				return nil, nil
			}

			filter, err := l.resolveFilter(ctx, b, desc, path)
			if err != nil {
				return nil, err
			}

			desc.filter = filter

			return l.lookup(ctx, b, desc)
		}

		if isOperator(v) {
			return l.eval.Evaluate(v, nil)
		}

		out := make(map[string]any, len(v))

		for k, child := range v {
			resolved, err := l.resolveValue(ctx, b, child, path+"."+k, append(at, k), links)
			if err != nil {
				return nil, err
			}

			out[k] = resolved
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, child := range v {
			resolved, err := l.resolveValue(ctx, b, child, fmt.Sprintf("%s[%d]", path, i), append(at, i), links)
			if err != nil {
				return nil, err
			}

			out[i] = resolved
		}

		return out, nil
	case string:
		if v == expression.NowToken {
			return l.eval.Evaluate(v, nil)
		}

		return v, nil
	default:
		return value, nil
	}
}

// resolveFilter resolves nested $find descriptors inside a descriptor filter.
// Field operators such as {"$in": [...]} are left for the store.
func (l *Loader) resolveFilter(ctx context.Context, b *batch, desc *descriptor, path string) (map[string]any, error) {
	resolved, err := l.resolveNested(ctx, b, desc.filter, path+"."+desc.op)
	if err != nil {
		return nil, err
	}

	return resolved.(map[string]any), nil
}

func (l *Loader) resolveNested(ctx context.Context, b *batch, value any, path string) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		desc, isDesc, err := parseDescriptor(v, path)
		if err != nil {
			return nil, err
		}

		if isDesc {
			if desc.op == expression.OpLink {
				return nil, models.NewValidationError(path, "%s cannot be nested inside a filter", expression.OpLink)
			}

			filter, err := l.resolveFilter(ctx, b, desc, path)
			if err != nil {
				return nil, err
			}

			desc.filter = filter

			return l.lookup(ctx, b, desc)
		}

		out := make(map[string]any, len(v))

		for k, child := range v {
			resolved, err := l.resolveNested(ctx, b, child, path+"."+k)
			if err != nil {
				return nil, err
			}

			out[k] = resolved
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, child := range v {
			resolved, err := l.resolveNested(ctx, b, child, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}

			out[i] = resolved
		}

		return out, nil
	default:
		return value, nil
	}
}

func (l *Loader) resolveLinks(ctx context.Context, b *batch) error {
	type target struct {
		model string
		id    string
		field string
	}

	patches := map[target]any{}
	order := make([]target, 0, len(b.pending))

	for _, link := range b.pending {
		filter, err := l.resolveFilter(ctx, b, link.desc, link.source)
		if err != nil {
			return fmt.Errorf("failed to resolve %s on %s/%s: %w", expression.OpLink, link.model, link.recordID, err)
		}

		link.desc.filter = filter

		value, err := l.lookup(ctx, b, link.desc)
		if err != nil {
			return fmt.Errorf("failed to resolve %s on %s/%s: %w", expression.OpLink, link.model, link.recordID, err)
		}

		field := link.path[0].(string)
		t := target{model: link.model, id: link.recordID, field: field}

		current, seen := patches[t]
		if !seen {
			record, err := l.store.FindOne(ctx, link.model, map[string]any{idField: link.recordID})
			if err != nil {
				return fmt.Errorf("failed to reload %s/%s: %w", link.model, link.recordID, err)
			}

			if record == nil {
				return fmt.Errorf("failed to reload %s/%s: record disappeared", link.model, link.recordID)
			}

			current = record[field]
			order = append(order, t)
		}

		patches[t] = setAt(current, link.path[1:], value)
	}

	for _, t := range order {
		_, err := l.store.Update(ctx, t.model, map[string]any{idField: t.id}, map[string]any{
			"$set": map[string]any{t.field: patches[t]},
		})
		if err != nil {
			return fmt.Errorf("failed to patch %s/%s: %w", t.model, t.id, err)
		}
	}

	return nil
}

// lookup returns the identifier (or _field value) of the single record the
// descriptor matches, or every match when _many is set.
func (l *Loader) lookup(ctx context.Context, b *batch, desc *descriptor) (any, error) {
	if id, ok := b.indexed(desc); ok {
		return id, nil
	}

	candidates, err := l.store.Find(ctx, desc.model, desc.filter, protocol.FindOptions{})
	if err != nil {
		return nil, err
	}

	matches := make([]any, 0, len(candidates))

	for _, candidate := range candidates {
		if desc.where != nil {
			ok, err := l.eval.Test(desc.where, candidate)
			if err != nil {
				return nil, err
			}

			if !ok {
				continue
			}
		}

		matches = append(matches, candidate[desc.field])
	}

	if desc.many {
		return matches, nil
	}

	if len(matches) != 1 {
		return nil, &models.ReferenceResolutionError{Model: desc.model, Filter: desc.filter, Matches: len(matches)}
	}

	return matches[0], nil
}

// indexed answers single natural-key lookups from the batch index.
func (b *batch) indexed(desc *descriptor) (string, bool) {
	key, ok := b.keys[desc.model]
	if !ok || desc.many || desc.where != nil || desc.field != idField || len(desc.filter) != 1 {
		return "", false
	}

	value, ok := desc.filter[key]
	if !ok {
		return "", false
	}

	switch value.(type) {
	case string, float64, int, bool:
	default:
		return "", false
	}

	id, ok := b.index[desc.model][fmt.Sprint(value)]

	return id, ok
}

func parseDescriptor(v map[string]any, path string) (*descriptor, bool, error) {
	if len(v) != 1 {
		return nil, false, nil
	}

	var (
		op   string
		body any
	)

	for k, value := range v {
		op, body = k, value
	}

	if op != expression.OpFind && op != expression.OpLink {
		return nil, false, nil
	}

	spec, ok := body.(map[string]any)
	if !ok {
		return nil, false, models.NewValidationError(path, "%s expects an object", op)
	}

	model, _ := spec[modelTag].(string)
	if model == "" {
		return nil, false, models.NewValidationError(path, "%s requires a %s tag", op, modelTag)
	}

	desc := &descriptor{op: op, model: model, field: idField, filter: map[string]any{}}

	for k, value := range spec {
		switch k {
		case modelTag:
		case manyTag:
			desc.many, _ = value.(bool)
		case whereTag:
			if err := expression.Validate(value); err != nil {
				return nil, false, err
			}

			desc.where = value
		case fieldTag:
			field, _ := value.(string)
			if field == "" {
				return nil, false, models.NewValidationError(path, "%s must be a field name", fieldTag)
			}

			desc.field = field
		default:
			desc.filter[k] = value
		}
	}

	if desc.many && op == expression.OpFind {
		return nil, false, models.NewValidationError(path, "%s does not support %s", op, manyTag)
	}

	return desc, true, nil
}

// isExpression reports whether v is a descriptor or operator object rather
// than a set of fields.
func isExpression(v map[string]any) bool {
	if len(v) != 1 {
		return false
	}

	for k := range v {
		if k == expression.OpFind || k == expression.OpLink {
			return true
		}
	}

	return isOperator(v)
}

func isOperator(v map[string]any) bool {
	if len(v) != 1 {
		return false
	}

	known := expression.Operators()

	for k := range v {
		i := sort.SearchStrings(known, k)

		return i < len(known) && known[i] == k
	}

	return false
}

// setAt returns container with value written at path, creating maps and
// growing arrays as needed.
func setAt(container any, path []any, value any) any {
	if len(path) == 0 {
		return value
	}

	switch segment := path[0].(type) {
	case string:
		m, ok := container.(map[string]any)
		if !ok {
			m = map[string]any{}
		}

		m[segment] = setAt(m[segment], path[1:], value)

		return m
	case int:
		list, _ := container.([]any)
		for len(list) <= segment {
			list = append(list, nil)
		}

		list[segment] = setAt(list[segment], path[1:], value)

		return list
	default:
		return container
	}
}
