package shared

import "context"

// Actor identifies the authenticated principal on whose behalf a request runs.
// Authentication itself is external; upstream middleware resolves the token and
// stores the actor here for audit fields.
type Actor struct {
	UserID    int64
	CompanyID int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
