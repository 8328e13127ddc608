package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/identity"
	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// callerID resolves the authorization-store identity of the caller on ctx,
// or "" when unauthenticated.
func callerID(ctx context.Context) string {
	return identity.FromContext(ctx).UserID
}

// Guard relations checked against the authorization store before a mutation.
// These are computed relations in the authorization model, derived there
// from owner/editor; the engine only names them.
const (
	RelationMove   = "can_move"
	RelationDelete = "can_delete"
	RelationShare  = "can_share"
	RelationManage = "can_manage"
)

// Manager orchestrates the lifecycle of one resource kind as two-phase
// sagas: phase 1 commits to the local store, phase 2 writes relationship
// tuples, and a phase-2 failure compensates phase 1 before surfacing
// ErrAuthzUnavailable.
//
// One implementation serves every kind; the differences between documents,
// folders and groups are data in the kind registry entry.
type Manager struct {
	kind    permissions.Kind
	store   Store
	authz   fga.Client
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewManager creates a lifecycle manager for one registered kind.
func NewManager(kind permissions.Kind, store Store, authz fga.Client, log *observability.Logger) *Manager {
	return &Manager{
		kind:  kind,
		store: store,
		authz: authz,
		log:   log.WithField("kind", kind.Name),
	}
}

// Kind returns the kind this manager serves.
func (m *Manager) Kind() permissions.Kind {
	return m.kind
}

// SetMetrics attaches Prometheus metrics. Optional.
func (m *Manager) SetMetrics(mm *observability.Metrics) {
	m.metrics = mm
}

func (m *Manager) countCompensation(operation string) {
	if m.metrics != nil {
		m.metrics.CompensationsTotal.WithLabelValues(m.kind.Name, operation).Inc()
	}
}

func (m *Manager) objectRef(id string) string {
	return fga.ObjectRef(m.kind.Name, id)
}

func (m *Manager) parentTuple(parentID, id string) fga.TupleKey {
	return fga.TupleKey{
		User:     fga.ObjectRef(m.kind.ParentKind, parentID),
		Relation: "parent",
		Object:   m.objectRef(id),
	}
}

// EnsureAccess verifies the caller holds relation on the resource,
// consulting the authorization store synchronously. It returns
// ErrUnauthenticated without a caller identity, ErrForbidden on a negative
// check, and ErrAuthzUnavailable when the check itself fails.
func (m *Manager) EnsureAccess(ctx context.Context, id, relation string) error {
	caller := callerID(ctx)
	if caller == "" {
		return ErrUnauthenticated
	}

	allowed, err := m.authz.Check(ctx, caller, relation, m.objectRef(id))
	if err != nil {
		return fmt.Errorf("%w: check failed: %v", ErrAuthzUnavailable, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s requires %s on %s", ErrForbidden, caller, relation, m.objectRef(id))
	}
	return nil
}

// Create inserts a new resource under parentID (empty for a root) and grants
// the caller ownership in the authorization store. If the tuple write fails,
// the inserted row is removed again and ErrAuthzUnavailable returned.
func (m *Manager) Create(ctx context.Context, title, parentID string) (*Resource, error) {
	caller := callerID(ctx)
	if caller == "" {
		return nil, ErrUnauthenticated
	}

	ancestors, err := ResolveAncestors(ctx, m.store, m.kind, parentID)
	if err != nil {
		return nil, err
	}

	r := &Resource{
		ID:          uuid.NewString(),
		Kind:        m.kind.Name,
		Title:       title,
		ParentID:    parentID,
		AncestorIDs: ancestors,
	}

	// Phase 1: local row, committed before any tuple write.
	if err := m.store.Insert(ctx, m.kind, r); err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", m.kind.Name, err)
	}

	// Phase 2: ownership plus the structural parent link.
	writes := []fga.TupleKey{
		{User: caller, Relation: "owner", Object: m.objectRef(r.ID)},
	}
	if parentID != "" {
		writes = append(writes, m.parentTuple(parentID, r.ID))
	}

	if err := m.authz.Write(ctx, writes, nil); err != nil {
		m.log.WithError(err).WithField("id", r.ID).Error("tuple write failed, compensating create")
		m.countCompensation("create")
		if delErr := m.store.Delete(ctx, m.kind, r.ID); delErr != nil {
			m.log.WithError(delErr).WithField("id", r.ID).
				Error("compensation failed: orphaned row without authorization tuples")
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthzUnavailable, err)
	}

	return r, nil
}

// Move reparents the resource. Moving to the current parent is a silent
// no-op. A phase-2 failure restores the prior parent and ancestor chain from
// the mutator's own snapshot.
func (m *Manager) Move(ctx context.Context, id, newParentID string) error {
	if err := m.EnsureAccess(ctx, id, RelationMove); err != nil {
		return err
	}

	r, err := m.store.Get(ctx, m.kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, m.objectRef(id))
		}
		return fmt.Errorf("failed to load %s: %w", m.objectRef(id), err)
	}

	if r.ParentID == newParentID {
		return nil
	}

	oldParentID := r.ParentID
	oldAncestors := append([]string(nil), r.AncestorIDs...)

	newAncestors, err := ResolveAncestors(ctx, m.store, m.kind, newParentID)
	if err != nil {
		return err
	}

	// Phase 1.
	if err := m.store.SetParent(ctx, m.kind, id, newParentID, newAncestors); err != nil {
		return fmt.Errorf("failed to update parent of %s: %w", m.objectRef(id), err)
	}

	// Phase 2: swap the structural parent tuple in one batched call.
	var writes, deletes []fga.TupleKey
	if oldParentID != "" {
		deletes = append(deletes, m.parentTuple(oldParentID, id))
	}
	if newParentID != "" {
		writes = append(writes, m.parentTuple(newParentID, id))
	}

	if err := m.authz.Write(ctx, writes, deletes); err != nil {
		m.log.WithError(err).WithField("id", id).Error("tuple write failed, reverting move")
		m.countCompensation("move")
		if restoreErr := m.store.SetParent(ctx, m.kind, id, oldParentID, oldAncestors); restoreErr != nil {
			m.log.WithError(restoreErr).WithField("id", id).
				Error("compensation failed: local parent diverges from authorization graph")
		}
		return fmt.Errorf("%w: %v", ErrAuthzUnavailable, err)
	}

	return nil
}

// Delete removes the resource locally, then cleans up its tuples on a
// best-effort basis. The local deletion is irreversible, so a tuple cleanup
// failure is logged and swallowed: the object is gone and leftover tuples
// reference nothing.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.EnsureAccess(ctx, id, RelationDelete); err != nil {
		return err
	}

	r, err := m.store.Get(ctx, m.kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, m.objectRef(id))
		}
		return fmt.Errorf("failed to load %s: %w", m.objectRef(id), err)
	}

	// Phase 1.
	if err := m.store.Delete(ctx, m.kind, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", m.objectRef(id), err)
	}

	// Phase 2, best effort.
	deletes := []fga.TupleKey{
		{User: callerID(ctx), Relation: "owner", Object: m.objectRef(id)},
	}
	if r.ParentID != "" {
		deletes = append(deletes, m.parentTuple(r.ParentID, id))
	}
	if err := m.authz.Write(ctx, nil, deletes); err != nil {
		m.log.WithError(err).WithField("id", id).Warn("failed to clean up tuples for deleted resource")
	}

	return nil
}

// Share grants targetUserID a relation on the resource. Only the
// authorization store is touched, so there is nothing to compensate.
func (m *Manager) Share(ctx context.Context, id, targetUserID, relation string) error {
	if targetUserID == "" {
		return fmt.Errorf("%w: missing target user", ErrValidation)
	}
	if permissions.RelationBit(relation) == permissions.MaskNone {
		return fmt.Errorf("%w: unknown relation %q", ErrValidation, relation)
	}

	if err := m.EnsureAccess(ctx, id, RelationShare); err != nil {
		return err
	}

	tuple := fga.TupleKey{
		User:     fga.UserRef(targetUserID),
		Relation: relation,
		Object:   m.objectRef(id),
	}
	if err := m.authz.Write(ctx, []fga.TupleKey{tuple}, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthzUnavailable, err)
	}
	return nil
}

// AddMember adds a member tuple to a group: a user, or another group's
// member set for nesting. Only valid for the group kind.
func (m *Manager) AddMember(ctx context.Context, groupID, targetID string, isUser bool) error {
	return m.writeMembership(ctx, groupID, targetID, isUser, false)
}

// RemoveMember removes a member tuple from a group.
func (m *Manager) RemoveMember(ctx context.Context, groupID, targetID string, isUser bool) error {
	return m.writeMembership(ctx, groupID, targetID, isUser, true)
}

func (m *Manager) writeMembership(ctx context.Context, groupID, targetID string, isUser, remove bool) error {
	if m.kind.Name != "group" {
		return fmt.Errorf("%w: membership applies to groups, not %s", ErrValidation, m.kind.Name)
	}
	if targetID == "" {
		return fmt.Errorf("%w: missing member id", ErrValidation)
	}

	if err := m.EnsureAccess(ctx, groupID, RelationManage); err != nil {
		return err
	}

	subject := fga.UserRef(targetID)
	if !isUser {
		subject = fga.ObjectRef("group", targetID) + "#member"
	}
	tuple := fga.TupleKey{User: subject, Relation: "member", Object: m.objectRef(groupID)}

	var err error
	if remove {
		err = m.authz.Write(ctx, nil, []fga.TupleKey{tuple})
	} else {
		err = m.authz.Write(ctx, []fga.TupleKey{tuple}, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthzUnavailable, err)
	}
	return nil
}
