package resources

import (
	"context"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// Resource is one secured row: a document, folder or group.
type Resource struct {
	// ID is an opaque unique identifier.
	ID string `json:"id"`

	// Kind is the authorization-store type name of this resource.
	Kind string `json:"kind"`

	// Title is the display attribute (a document's title, a folder's or
	// group's name).
	Title string `json:"title"`

	// ParentID references a resource of the kind's declared parent kind.
	// Empty for roots.
	ParentID string `json:"parent_id,omitempty"`

	// AncestorIDs is the denormalized ancestor chain as qualified
	// "{type}:{id}" refs, root-first, ending at ParentID. It is recomputed
	// on every parent change; the authorization store's graph stays
	// authoritative.
	AncestorIDs []string `json:"ancestor_ids"`
}

// Store is the relational persistence contract for secured resources. All
// methods operate on one kind's table; reads are subject to the database's
// row-level enforcement for the caller on ctx.
type Store interface {
	Insert(ctx context.Context, kind permissions.Kind, r *Resource) error

	// Get returns ErrNotFound when no visible row matches.
	Get(ctx context.Context, kind permissions.Kind, id string) (*Resource, error)

	// SetParent updates the parent reference and the denormalized ancestor
	// chain in one statement.
	SetParent(ctx context.Context, kind permissions.Kind, id, parentID string, ancestorIDs []string) error

	Delete(ctx context.Context, kind permissions.Kind, id string) error

	// List returns the rows of the kind visible to the caller.
	List(ctx context.Context, kind permissions.Kind) ([]Resource, error)
}
