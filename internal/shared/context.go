package shared

import "context"

// Actor identifies who performed a posting. It is supplied by the identity
// layer in front of the engine and only used for audit.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// System is the actor recorded for scheduled jobs.
var System = Actor{ID: "system", Email: "system@factorybooks.local"}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor, falling back to System.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return System
	}
	return actor
}
