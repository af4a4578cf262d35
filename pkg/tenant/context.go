package tenant

import "context"

type contextKey string

const idKey contextKey = "tenant_id"

// WithID returns a context carrying the tenant work is done for.
func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}

	return context.WithValue(ctx, idKey, id)
}

// IDFromContext returns the tenant stored in ctx, or "" when there is none.
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(idKey).(string)

	return id
}
