package shared

import "context"

// SystemUserID identifies work performed by the platform rather than a person.
const SystemUserID int64 = 0

// Actor carries the tenant and user a unit of work runs for.
type Actor struct {
	TenantID int64
	UserID   int64
}

// SystemActor returns the explicit system actor for a tenant.
func SystemActor(tenantID int64) Actor {
	return Actor{TenantID: tenantID, UserID: SystemUserID}
}

// IsSystem reports whether the actor is the system actor.
func (a Actor) IsSystem() bool {
	return a.UserID == SystemUserID
}

// HasUser reports whether a real user is attached.
func (a Actor) HasUser() bool {
	return a.UserID > 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
