package postgres

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestMigrationsAreOrderedAndUnique(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	seen := make(map[int]bool)
	prev := 0
	for _, m := range migrations {
		assert.Greater(t, m.Version, prev, "migration versions must be strictly increasing")
		assert.False(t, seen[m.Version], "duplicate version %d", m.Version)
		assert.NotEmpty(t, m.Description)
		assert.Contains(t, m.SQL, "IF NOT EXISTS")
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestMigrationsCoverEveryRegisteredKind(t *testing.T) {
	var all strings.Builder
	for _, m := range GetMigrations() {
		all.WriteString(m.SQL)
	}

	for _, kind := range permissions.Kinds() {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+kind.Table,
			"no migration creates table for kind %s", kind.Name)
		assert.Contains(t, all.String(), kind.TitleColumn+" TEXT NOT NULL")
	}
}

func TestRunMigrationsSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied := sqlmock.NewRows([]string{"version"})
	for _, m := range GetMigrations() {
		applied.AddRow(m.Version)
	}
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(applied)

	// Nothing pending, only the idempotent policy DDL runs.
	for range permissions.Kinds() {
		mock.ExpectExec("ALTER TABLE").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, RunMigrations(context.Background(), db, testLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	for _, m := range GetMigrations() {
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(m.Version, m.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}
	for range permissions.Kinds() {
		mock.ExpectExec("ALTER TABLE").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, RunMigrations(context.Background(), db, testLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
