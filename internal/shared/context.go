package shared

import "context"

// Actor identifies the authenticated caller of a ledger operation. The
// identifier is issued by the upstream auth collaborator and is passed
// through for audit attribution only; no role checks happen here.
type Actor struct {
	ID int64
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
