package auth

import (
	"context"
	"strings"

	domain "github.com/fleamart/api/internal/domain"
)

// Identity captures the authenticated principal materialised from the headers
// set by the upstream auth proxy.
type Identity struct {
	UID  string
	Role domain.Role
}

// Actor converts the identity into the domain actor shape consumed by services.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: i.UID, Role: i.Role}
}

// IsAdmin reports whether the identity carries platform staff privileges.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == domain.RoleAdmin
}

// IsSystem reports whether the identity is an internal caller such as a carrier callback.
func (i *Identity) IsSystem() bool {
	return i != nil && i.Role == domain.RoleSystem
}

type contextKey string

const identityContextKey contextKey = "github.com/fleamart/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ParseRole normalises the role header value to a known role, defaulting to buyer.
func ParseRole(raw string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(domain.RoleSeller):
		return domain.RoleSeller
	case string(domain.RoleAdmin):
		return domain.RoleAdmin
	case string(domain.RoleSystem):
		return domain.RoleSystem
	default:
		return domain.RoleBuyer
	}
}
