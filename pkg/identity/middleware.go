package identity

import (
	"net/http"

	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// Header names the edge proxy uses to convey the verified caller and the
// relation level the request needs. Verification of these headers happens
// upstream; this process trusts its ingress.
const (
	UserHeader     = "X-User-Id"
	RelationHeader = "X-Require-Relation"
)

// Middleware resolves the request principal from headers and attaches it to
// the request context. Requests without a user header proceed
// unauthenticated; the lifecycle manager and the row-level filter both treat
// that as "no access", never as a wildcard.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Principal

		if userID := r.Header.Get(UserHeader); userID != "" {
			p.UserID = fga.UserRef(userID)
		}

		// Reads default to viewer level unless the request names a
		// stronger relation.
		p.RequiredMask = permissions.BitViewer
		if rel := r.Header.Get(RelationHeader); rel != "" {
			p.RequiredMask = permissions.RelationBit(rel)
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}
