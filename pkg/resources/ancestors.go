package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// maxAncestorDepth bounds the upward walk. A well-formed hierarchy never
// approaches this; hitting it means a cycle or corrupted parent links.
const maxAncestorDepth = 50

// ResolveAncestors computes the ancestor chain for a resource of kind whose
// declared parent is parentID: qualified "{type}:{id}" refs, root-first,
// ending at the immediate parent. Empty parentID resolves to an empty chain.
//
// The walk reads one parent link at a time from the store rather than
// trusting any denormalized chain, so a stale AncestorIDs value on an
// ancestor cannot propagate into new rows.
func ResolveAncestors(ctx context.Context, store Store, kind permissions.Kind, parentID string) ([]string, error) {
	if parentID == "" {
		return []string{}, nil
	}

	parentKind, ok := permissions.KindByName(kind.ParentKind)
	if !ok {
		return nil, fmt.Errorf("%w: kind %q has unregistered parent kind %q", ErrValidation, kind.Name, kind.ParentKind)
	}

	// Collected immediate-parent-first, reversed to root-first at the end.
	var chain []string
	current := parentID

	for depth := 0; current != ""; depth++ {
		if depth >= maxAncestorDepth {
			return nil, fmt.Errorf("%w: walking above %s:%s", ErrCycleOrTooDeep, parentKind.Name, parentID)
		}

		r, err := store.Get(ctx, parentKind, current)
		if errors.Is(err, ErrNotFound) {
			if depth == 0 {
				return nil, fmt.Errorf("%w: %s:%s", ErrParentNotFound, parentKind.Name, current)
			}
			return nil, fmt.Errorf("broken ancestor chain at %s:%s: %w", parentKind.Name, current, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ancestor %s:%s: %w", parentKind.Name, current, err)
		}

		chain = append(chain, fga.ObjectRef(parentKind.Name, current))
		current = r.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
