package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CheckpointKey names the sync engine's row in sync_state.
const CheckpointKey = "permission_sync"

// CheckpointStore persists the engine's high-water mark on the change feed.
type CheckpointStore interface {
	// Load returns the stored checkpoint, or the zero time when none exists.
	Load(ctx context.Context, key string) (time.Time, error)

	// Save stores the checkpoint.
	Save(ctx context.Context, key string, t time.Time) error
}

// SQLCheckpoints stores checkpoints in the sync_state table.
type SQLCheckpoints struct {
	db *sql.DB
}

// NewSQLCheckpoints creates a checkpoint store backed by the given database
// handle.
func NewSQLCheckpoints(db *sql.DB) *SQLCheckpoints {
	return &SQLCheckpoints{db: db}
}

func (s *SQLCheckpoints) Load(ctx context.Context, key string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT last_sync_time FROM sync_state WHERE key = $1", key).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load checkpoint %s: %w", key, err)
	}
	return t, nil
}

func (s *SQLCheckpoints) Save(ctx context.Context, key string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, last_sync_time, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET last_sync_time = $2, updated_at = NOW()`,
		key, t)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", key, err)
	}
	return nil
}

// MemoryCheckpoints is an in-memory CheckpointStore for tests.
type MemoryCheckpoints struct {
	mu     sync.Mutex
	values map[string]time.Time

	LoadErr error
	SaveErr error
}

// NewMemoryCheckpoints creates an empty in-memory checkpoint store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{values: make(map[string]time.Time)}
}

func (s *MemoryCheckpoints) Load(_ context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return time.Time{}, s.LoadErr
	}
	return s.values[key], nil
}

func (s *MemoryCheckpoints) Save(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.values[key] = t
	return nil
}
