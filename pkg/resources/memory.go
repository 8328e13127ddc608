package resources

import (
	"context"
	"sync"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// MemoryStore is an in-memory Store for tests and local development. It
// applies no row-level filtering: visibility tests belong to the database's
// policy layer, not this fake.
//
// The error fields, when set, are returned by the corresponding method.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]map[string]Resource // kind name -> id -> row

	InsertErr    error
	GetErr       error
	SetParentErr error
	DeleteErr    error
}

// NewMemoryStore creates an empty in-memory resource store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]map[string]Resource)}
}

func (s *MemoryStore) table(kind permissions.Kind) map[string]Resource {
	t, ok := s.rows[kind.Name]
	if !ok {
		t = make(map[string]Resource)
		s.rows[kind.Name] = t
	}
	return t
}

func (s *MemoryStore) Insert(_ context.Context, kind permissions.Kind, r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.table(kind)[r.ID] = cloneResource(*r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind permissions.Kind, id string) (*Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	r, ok := s.table(kind)[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneResource(r)
	return &out, nil
}

func (s *MemoryStore) SetParent(_ context.Context, kind permissions.Kind, id, parentID string, ancestorIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetParentErr != nil {
		return s.SetParentErr
	}
	r, ok := s.table(kind)[id]
	if !ok {
		return ErrNotFound
	}
	r.ParentID = parentID
	r.AncestorIDs = append([]string(nil), ancestorIDs...)
	s.table(kind)[id] = r
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind permissions.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if _, ok := s.table(kind)[id]; !ok {
		return ErrNotFound
	}
	delete(s.table(kind), id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, kind permissions.Kind) ([]Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Resource
	for _, r := range s.table(kind) {
		out = append(out, cloneResource(r))
	}
	return out, nil
}

func cloneResource(r Resource) Resource {
	r.AncestorIDs = append([]string(nil), r.AncestorIDs...)
	return r
}
