package common

import "context"

type ctxKey string

const actorKey ctxKey = "auth/actor"

// WithActor stores the identity of the caller on the provided context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor extracts the caller identity from the context if present.
func Actor(ctx context.Context) (string, bool) {
	v := ctx.Value(actorKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
