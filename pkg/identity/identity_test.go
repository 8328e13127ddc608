package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

func TestFromContext_Empty(t *testing.T) {
	p := FromContext(context.Background())
	assert.False(t, p.Authenticated())
	assert.Equal(t, permissions.MaskNone, p.RequiredMask)
}

func TestWithPrincipalRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{
		UserID:       "user:alice",
		RequiredMask: permissions.BitEditor,
	})

	p := FromContext(ctx)
	assert.True(t, p.Authenticated())
	assert.Equal(t, "user:alice", p.UserID)
	assert.Equal(t, permissions.BitEditor, p.RequiredMask)
}

func TestMiddleware_ResolvesPrincipal(t *testing.T) {
	var got Principal
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set(UserHeader, "alice")
	req.Header.Set(RelationHeader, "editor")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user:alice", got.UserID)
	assert.Equal(t, permissions.BitEditor, got.RequiredMask)
}

func TestMiddleware_DefaultsToViewer(t *testing.T) {
	var got Principal
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set(UserHeader, "bob")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "user:bob", got.UserID)
	assert.Equal(t, permissions.BitViewer, got.RequiredMask)
}

func TestMiddleware_UnauthenticatedStaysEmpty(t *testing.T) {
	var got Principal
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.False(t, got.Authenticated())
}
