package syncer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// Entry is one row of the local permission cache: the effective direct
// permission mask a user holds on an object, aggregated from the
// authorization store's tracked relations.
type Entry struct {
	ObjectType string
	ObjectID   string
	UserID     string
	Mask       permissions.Mask
}

// CacheStore is the persistence contract for the permission cache. Both
// replace operations are full swaps: the engine re-derives the complete
// entry set for a target and the store atomically replaces whatever was
// there, so repeated reconciliation of the same target is idempotent.
type CacheStore interface {
	// ReplaceForObject swaps all cache rows of one object.
	ReplaceForObject(ctx context.Context, objectType, objectID string, entries []Entry) error

	// ReplaceForUser swaps all cache rows of one user across every object.
	ReplaceForUser(ctx context.Context, userID string, entries []Entry) error
}

// SQLCache stores the permission cache in the permissions table. Each swap
// runs as one transaction: delete the target's rows, then bulk-insert the
// replacement set with COPY. Readers on other connections never observe a
// half-replaced target.
type SQLCache struct {
	db *sql.DB
}

// NewSQLCache creates a cache store backed by the given database handle.
func NewSQLCache(db *sql.DB) *SQLCache {
	return &SQLCache{db: db}
}

func (c *SQLCache) ReplaceForObject(ctx context.Context, objectType, objectID string, entries []Entry) error {
	return c.replace(ctx,
		"DELETE FROM permissions WHERE object_type = $1 AND object_id = $2",
		[]interface{}{objectType, objectID}, entries)
}

func (c *SQLCache) ReplaceForUser(ctx context.Context, userID string, entries []Entry) error {
	return c.replace(ctx,
		"DELETE FROM permissions WHERE user_id = $1",
		[]interface{}{userID}, entries)
}

func (c *SQLCache) replace(ctx context.Context, deleteQuery string, deleteArgs []interface{}, entries []Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return fmt.Errorf("failed to clear cache rows: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			pq.CopyIn("permissions", "object_type", "object_id", "user_id", "permission_mask"))
		if err != nil {
			return fmt.Errorf("failed to prepare bulk insert: %w", err)
		}

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ObjectType, e.ObjectID, e.UserID, int(e.Mask)); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to buffer cache row: %w", err)
			}
		}
		// Flush the COPY stream.
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to flush bulk insert: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("failed to close bulk insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache swap: %w", err)
	}
	return nil
}
