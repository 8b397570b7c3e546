package auth

import (
	"net/http"
	"strings"

	"github.com/fleamart/api/internal/platform/httpx"
)

const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// Middleware materialises the caller identity from the headers stamped by the
// upstream auth proxy. Requests without a user id are rejected; requireAdmin
// additionally demands the admin role.
type Middleware struct {
	requireAdmin bool
}

// NewMiddleware constructs identity middleware for authenticated routes.
func NewMiddleware() *Middleware {
	return &Middleware{}
}

// NewAdminMiddleware constructs identity middleware for admin-only routes.
func NewAdminMiddleware() *Middleware {
	return &Middleware{requireAdmin: true}
}

// Handler wraps next with identity extraction and authorisation checks.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		uid := strings.TrimSpace(r.Header.Get(headerUserID))
		if uid == "" {
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}

		identity := &Identity{
			UID:  uid,
			Role: ParseRole(r.Header.Get(headerUserRole)),
		}

		if m != nil && m.requireAdmin && !identity.IsAdmin() {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin privileges required", http.StatusForbidden))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}
