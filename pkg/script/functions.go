package script

import (
	"context"
	"fmt"

	"github.com/dukex/packflow/pkg/protocol"
)

var storeFunctions = []string{"findOne", "findMany", "create", "update", "remove", "upsert"}

// bind exposes the data store to scripts. Each function returns an error the
// script cannot swallow, which fails the run of the script.
func bind(ctx context.Context, db protocol.DataStore) map[string]any {
	store := func() (protocol.DataStore, error) {
		if db == nil {
			return nil, fmt.Errorf("data store %w", protocol.ErrCollaboratorUnavailable)
		}

		return db, nil
	}

	return map[string]any{
		"findOne": func(model string, filter map[string]any) (map[string]any, error) {
			s, err := store()
			if err != nil {
				return nil, err
			}

			return s.FindOne(ctx, model, filter)
		},
		"findMany": func(model string, filter map[string]any, limit int) ([]any, error) {
			s, err := store()
			if err != nil {
				return nil, err
			}

			records, err := s.Find(ctx, model, filter, protocol.FindOptions{Limit: limit})
			if err != nil {
				return nil, err
			}

			out := make([]any, len(records))
			for i, record := range records {
				out[i] = record
			}

			return out, nil
		},
		"create": func(model string, doc map[string]any) (map[string]any, error) {
			s, err := store()
			if err != nil {
				return nil, err
			}

			return s.Create(ctx, model, doc)
		},
		"update": func(model string, filter, patch map[string]any) (int, error) {
			s, err := store()
			if err != nil {
				return 0, err
			}

			return s.Update(ctx, model, filter, patch)
		},
		"remove": func(model string, filter map[string]any) (int, error) {
			s, err := store()
			if err != nil {
				return 0, err
			}

			return s.Delete(ctx, model, filter)
		},
		"upsert": func(model string, filter, doc map[string]any) (map[string]any, error) {
			s, err := store()
			if err != nil {
				return nil, err
			}

			return s.Upsert(ctx, model, filter, doc)
		},
	}
}
