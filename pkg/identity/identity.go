package identity

import (
	"context"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// Principal is the resolved caller identity for one request scope: who is
// asking, and the minimum permission mask their current operation requires.
// It travels explicitly on the context; there is no ambient request state.
type Principal struct {
	// UserID is the authorization-store identity, "user:{id}". Empty means
	// unauthenticated.
	UserID string

	// RequiredMask is the bitmask a permission cache row must satisfy for
	// the row-level filter to expose a resource to this request.
	RequiredMask permissions.Mask
}

// Authenticated reports whether a caller identity was resolved.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

type contextKey struct{}

// WithPrincipal attaches a principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal for the request scope. The zero
// Principal (unauthenticated, zero mask) is returned when none was attached.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(contextKey{}).(Principal)
	return p
}
