package fga

import (
	"context"
	"strings"
	"time"
)

// TupleKey is one (user, relation, object) fact in the authorization store's
// relationship graph.
type TupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// TupleChange is one entry from the authorization store's change feed.
type TupleChange struct {
	TupleKey  TupleKey  `json:"tuple_key"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is the set of operations the engine issues against the
// authorization store. The store owns the relationship graph; nothing is
// persisted locally through this interface.
type Client interface {
	// Check reports whether user holds relation on object.
	Check(ctx context.Context, user, relation, object string) (bool, error)

	// Write applies tuple writes and deletes in a single batched call.
	Write(ctx context.Context, writes, deletes []TupleKey) error

	// ListUsers returns the users (as "user:{id}" refs) holding relation on
	// the object, restricted to subjects of userTypeFilter.
	ListUsers(ctx context.Context, objectType, objectID, relation, userTypeFilter string) ([]string, error)

	// ListObjects returns the objects (as "{type}:{id}" refs) of objectType
	// on which user holds relation, following the store's own inheritance
	// evaluation.
	ListObjects(ctx context.Context, user, relation, objectType string) ([]string, error)

	// ReadChanges returns the ordered change-feed entries at or after since.
	// A zero since reads from the beginning of the feed.
	ReadChanges(ctx context.Context, since time.Time) ([]TupleChange, error)
}

// ObjectRef builds a "{type}:{id}" object identifier.
func ObjectRef(objectType, id string) string {
	return objectType + ":" + id
}

// UserRef builds a "user:{id}" identifier for a human principal.
func UserRef(id string) string {
	return "user:" + id
}

// SplitRef splits a "{type}:{id}" reference. ok is false when the reference
// has no type prefix or an empty id.
func SplitRef(ref string) (objectType, id string, ok bool) {
	objectType, id, ok = strings.Cut(ref, ":")
	if !ok || objectType == "" || id == "" {
		return "", "", false
	}
	return objectType, id, true
}

// IsUserRef reports whether ref identifies a human principal.
func IsUserRef(ref string) bool {
	return strings.HasPrefix(ref, "user:")
}
