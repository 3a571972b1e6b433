package shared

import "context"

// Actor identifies the verified operator performing a request. Authentication
// itself happens outside the core; middleware resolves the actor and stores
// it in the request context.
type Actor struct {
	ID   int64
	Name string
	Role string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The zero Actor is
// returned when no actor was attached.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
