package resources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mosaicdocs/mosaic/pkg/permissions"
	"github.com/mosaicdocs/mosaic/pkg/rls"
)

// SQLStore persists secured resources in Postgres. Every call runs on a
// connection with the row-level enforcement variables set from the caller on
// ctx, so SELECTs come back filtered by the permission cache while writes
// pass through to the lifecycle manager's own checks.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store backed by the given database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func nullableID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func (s *SQLStore) Insert(ctx context.Context, kind permissions.Kind, r *Resource) error {
	conn, release, err := rls.Acquire(ctx, s.db)
	if err != nil {
		return err
	}
	defer release()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, %s, parent_id, ancestor_ids) VALUES ($1, $2, $3, $4)",
		kind.Table, kind.TitleColumn)

	if _, err := conn.ExecContext(ctx, query, r.ID, r.Title, nullableID(r.ParentID), pq.Array(r.AncestorIDs)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", kind.Table, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, kind permissions.Kind, id string) (*Resource, error) {
	conn, release, err := rls.Acquire(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(
		"SELECT id, %s, COALESCE(parent_id, ''), ancestor_ids FROM %s WHERE id = $1",
		kind.TitleColumn, kind.Table)

	r := Resource{Kind: kind.Name}
	err = conn.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Title, &r.ParentID, pq.Array(&r.AncestorIDs))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind.Name, id, err)
	}
	return &r, nil
}

func (s *SQLStore) SetParent(ctx context.Context, kind permissions.Kind, id, parentID string, ancestorIDs []string) error {
	conn, release, err := rls.Acquire(ctx, s.db)
	if err != nil {
		return err
	}
	defer release()

	query := fmt.Sprintf("UPDATE %s SET parent_id = $2, ancestor_ids = $3 WHERE id = $1", kind.Table)

	res, err := conn.ExecContext(ctx, query, id, nullableID(parentID), pq.Array(ancestorIDs))
	if err != nil {
		return fmt.Errorf("failed to update parent of %s %s: %w", kind.Name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, kind permissions.Kind, id string) error {
	conn, release, err := rls.Acquire(ctx, s.db)
	if err != nil {
		return err
	}
	defer release()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", kind.Table)

	res, err := conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind.Name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, kind permissions.Kind) ([]Resource, error) {
	conn, release, err := rls.Acquire(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer release()

	query := fmt.Sprintf(
		"SELECT id, %s, COALESCE(parent_id, ''), ancestor_ids FROM %s ORDER BY %s",
		kind.TitleColumn, kind.Table, kind.TitleColumn)

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind.Table, err)
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		r := Resource{Kind: kind.Name}
		if err := rows.Scan(&r.ID, &r.Title, &r.ParentID, pq.Array(&r.AncestorIDs)); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind.Name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
