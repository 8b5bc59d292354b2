package shared

import "context"

type contextKey int

const actorContextKey contextKey = iota

// ContextWithActor stores the acting user id (supplied by the external auth
// layer) on the context.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey, actorID)
}

// ActorFromContext returns the acting user id, or "" when unauthenticated.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey).(string)
	return actor
}
