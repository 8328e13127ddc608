package fga

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Client used by tests and local development. It
// evaluates direct tuples only; derived relations are the real store's job.
//
// Error fields, when set, are returned by the corresponding operation.
// Writes that fail leave the tuple set untouched, matching the all-or-nothing
// behavior of the real store's batched write.
type Memory struct {
	mu      sync.Mutex
	tuples  []TupleKey
	changes []TupleChange

	CheckErr       error
	WriteErr       error
	ListUsersErr   error
	ListObjectsErr error
	ReadChangesErr error

	// Now supplies change-feed timestamps; defaults to time.Now.
	Now func() time.Time
}

// NewMemory creates an empty in-memory authorization store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

// Check reports whether a direct tuple (user, relation, object) exists.
func (m *Memory) Check(_ context.Context, user, relation, object string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CheckErr != nil {
		return false, m.CheckErr
	}
	for _, t := range m.tuples {
		if t.User == user && t.Relation == relation && t.Object == object {
			return true, nil
		}
	}
	return false, nil
}

// Write applies writes and deletes and records them on the change feed.
func (m *Memory) Write(_ context.Context, writes, deletes []TupleKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return m.WriteErr
	}

	ts := m.now()
	for _, d := range deletes {
		for i, t := range m.tuples {
			if t == d {
				m.tuples = append(m.tuples[:i], m.tuples[i+1:]...)
				break
			}
		}
		m.changes = append(m.changes, TupleChange{TupleKey: d, Operation: "TUPLE_OPERATION_DELETE", Timestamp: ts})
	}
	for _, w := range writes {
		exists := false
		for _, t := range m.tuples {
			if t == w {
				exists = true
				break
			}
		}
		if !exists {
			m.tuples = append(m.tuples, w)
		}
		m.changes = append(m.changes, TupleChange{TupleKey: w, Operation: "TUPLE_OPERATION_WRITE", Timestamp: ts})
	}
	return nil
}

// ListUsers returns subjects of userTypeFilter holding relation on the
// object through a direct tuple.
func (m *Memory) ListUsers(_ context.Context, objectType, objectID, relation, userTypeFilter string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListUsersErr != nil {
		return nil, m.ListUsersErr
	}

	object := ObjectRef(objectType, objectID)
	prefix := userTypeFilter + ":"
	var out []string
	seen := map[string]bool{}
	for _, t := range m.tuples {
		if t.Object != object || t.Relation != relation {
			continue
		}
		// Userset subjects like "group:g#member" are not user-typed.
		if !strings.HasPrefix(t.User, prefix) || strings.Contains(t.User, "#") {
			continue
		}
		if !seen[t.User] {
			seen[t.User] = true
			out = append(out, t.User)
		}
	}
	return out, nil
}

// ListObjects returns objects of objectType on which user holds relation
// through a direct tuple.
func (m *Memory) ListObjects(_ context.Context, user, relation, objectType string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListObjectsErr != nil {
		return nil, m.ListObjectsErr
	}

	prefix := objectType + ":"
	var out []string
	seen := map[string]bool{}
	for _, t := range m.tuples {
		if t.User != user || t.Relation != relation || !strings.HasPrefix(t.Object, prefix) {
			continue
		}
		if !seen[t.Object] {
			seen[t.Object] = true
			out = append(out, t.Object)
		}
	}
	return out, nil
}

// ReadChanges returns recorded changes at or after since.
func (m *Memory) ReadChanges(_ context.Context, since time.Time) ([]TupleChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadChangesErr != nil {
		return nil, m.ReadChangesErr
	}

	var out []TupleChange
	for _, c := range m.changes {
		if !c.Timestamp.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// AppendChange records a raw feed entry without touching the tuple set.
// Tests use this for malformed or untracked entries.
func (m *Memory) AppendChange(change TupleChange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if change.Timestamp.IsZero() {
		change.Timestamp = m.now()
	}
	m.changes = append(m.changes, change)
}

// Tuples returns a snapshot of the current tuple set.
func (m *Memory) Tuples() []TupleKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TupleKey, len(m.tuples))
	copy(out, m.tuples)
	return out
}
