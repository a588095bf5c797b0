package shared

import "context"

// Actor identifies the caller of an engine operation together with its
// granted permissions. It is threaded explicitly through context so no
// global requester state exists.
type Actor struct {
	ID          int64
	System      bool
	Permissions map[string]bool
}

// Can reports whether the actor holds a permission. System actors hold all.
func (a *Actor) Can(perm string) bool {
	if a == nil {
		return false
	}
	if a.System {
		return true
	}
	return a.Permissions[perm]
}

type tenantContextKey struct{}

type actorContextKey struct{}

// ContextWithTenant stores the tenant id in context.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id, zero when absent.
func TenantFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(tenantContextKey{}).(int64)
	return id
}

// ContextWithActor stores the acting user in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user from context.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}

// SystemContext returns ctx carrying a system actor for internal operations
// such as recalculation and payment-driven status flips.
func SystemContext(ctx context.Context) context.Context {
	return ContextWithActor(ctx, &Actor{System: true})
}
