package rbac

import (
	"context"
	"net/http"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Resolver returns the effective permissions for a user.
type Resolver interface {
	ResolveEffectivePermissions(ctx context.Context, tenantID, userID int64) (EffectivePermissions, error)
}

// Middleware enforces module capabilities for the acting user.
type Middleware struct {
	resolver Resolver
}

// NewMiddleware constructs RBAC middleware.
func NewMiddleware(resolver Resolver) *Middleware {
	return &Middleware{resolver: resolver}
}

// Require allows the request through when the actor holds capability on module.
// The system actor bypasses checks.
func (m *Middleware) Require(module string, capability Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if actor.IsSystem() {
				next.ServeHTTP(w, r)
				return
			}
			perms, err := m.resolver.ResolveEffectivePermissions(r.Context(), actor.TenantID, actor.UserID)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if !perms.Allows(module, capability) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing "+string(capability)+" on "+module)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
