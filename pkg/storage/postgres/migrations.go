package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
	"github.com/mosaicdocs/mosaic/pkg/rls"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations, in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create folders table",
			SQL: `
				CREATE TABLE IF NOT EXISTS folders (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					parent_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
					ancestor_ids TEXT[] NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_folders_parent_id ON folders(parent_id);
				CREATE INDEX IF NOT EXISTS idx_folders_ancestor_ids ON folders USING GIN(ancestor_ids);
			`,
		},
		{
			Version:     2,
			Description: "Create documents table",
			SQL: `
				CREATE TABLE IF NOT EXISTS documents (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					parent_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
					ancestor_ids TEXT[] NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_documents_parent_id ON documents(parent_id);
				CREATE INDEX IF NOT EXISTS idx_documents_ancestor_ids ON documents USING GIN(ancestor_ids);
			`,
		},
		{
			Version:     3,
			Description: "Create groups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					parent_id TEXT REFERENCES groups(id) ON DELETE SET NULL,
					ancestor_ids TEXT[] NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_groups_parent_id ON groups(parent_id);
			`,
		},
		{
			Version:     4,
			Description: "Create permissions cache table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					object_type TEXT NOT NULL,
					object_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					permission_mask INT NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (object_type, object_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_user_id ON permissions(user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create sync_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sync_state (
					key TEXT PRIMARY KEY,
					last_sync_time TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, then reapplies the row-level
// security policies for every registered kind. Policies live outside the
// versioned migrations so a policy change takes effect without a new version.
func RunMigrations(ctx context.Context, db *sql.DB, log *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		log.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return ApplyPolicies(ctx, db, log)
}

// ApplyPolicies installs the row-level security policies for every registered
// kind. The generated DDL is idempotent.
func ApplyPolicies(ctx context.Context, db *sql.DB, log *observability.Logger) error {
	for _, kind := range permissions.Kinds() {
		if _, err := db.ExecContext(ctx, rls.Policy(kind.Table, kind.Name)); err != nil {
			return fmt.Errorf("failed to apply policies for %s: %w", kind.Table, err)
		}
		log.WithField("table", kind.Table).Debug("row-level policies applied")
	}
	return nil
}
