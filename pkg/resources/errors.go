package resources

import "errors"

// Error taxonomy for lifecycle operations. Callers branch with errors.Is;
// everything else coming out of this package is an internal local-store
// failure wrapped with context.
var (
	// ErrUnauthenticated means no caller identity could be resolved.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrForbidden means the caller is authenticated but lacks the
	// required relation.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrParentNotFound means the declared parent does not exist.
	ErrParentNotFound = errors.New("parent not found")

	// ErrValidation means the request is malformed.
	ErrValidation = errors.New("invalid request")

	// ErrAuthzUnavailable means an authorization-store call failed or
	// timed out during a saga. Any local phase-1 mutation has been
	// compensated by the time this is returned.
	ErrAuthzUnavailable = errors.New("authorization service unavailable")

	// ErrCycleOrTooDeep means the ancestor walk exceeded the depth bound,
	// which indicates a cycle or a malformed hierarchy.
	ErrCycleOrTooDeep = errors.New("ancestor chain exceeds depth bound")
)
