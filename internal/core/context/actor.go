package context

import (
	"context"
	"slices"
)

// SystemActor is recorded for operations started by the worker or by
// unauthenticated callers when authentication is disabled.
const SystemActor = "system"

// Actor identifies who performs a state-changing operation.
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// ActorName returns the actor name recorded in ledgers and stacks.
func ActorName(ctx context.Context) string {
	if a := GetActor(ctx); a != nil && a.Name != "" {
		return a.Name
	}
	return SystemActor
}

// HasRole checks if the actor has a specific role.
func HasRole(ctx context.Context, role string) bool {
	a := GetActor(ctx)
	if a == nil {
		return false
	}
	return slices.Contains(a.Roles, role)
}
