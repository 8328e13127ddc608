package rls

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdocs/mosaic/pkg/identity"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

func TestPolicy_SelectPredicate(t *testing.T) {
	ddl := Policy("documents", "document")

	assert.Contains(t, ddl, "ALTER TABLE documents ENABLE ROW LEVEL SECURITY")
	assert.Contains(t, ddl, "CREATE POLICY rls_documents_select ON documents FOR SELECT")

	// Direct permission check on the cache.
	assert.Contains(t, ddl, "p.object_type = 'document'")
	assert.Contains(t, ddl, "p.object_id = documents.id")

	// Inherited permission check composes the qualified ancestor ref.
	assert.Contains(t, ddl, "p.object_type || ':' || p.object_id = ANY(documents.ancestor_ids)")

	// Bitmask containment.
	assert.Contains(t, ddl, "p.permission_mask & CAST(NULLIF(current_setting('app.required_mask', true), '') AS integer)")

	// Empty current_user must never match anything.
	assert.Contains(t, ddl, "NULLIF(current_setting('app.current_user', true), '') IS NOT NULL")
}

func TestPolicy_WritesPassThrough(t *testing.T) {
	ddl := Policy("folders", "folder")

	assert.Contains(t, ddl, "CREATE POLICY rls_folders_insert ON folders FOR INSERT WITH CHECK (true)")
	assert.Contains(t, ddl, "CREATE POLICY rls_folders_update ON folders FOR UPDATE USING (true)")
	assert.Contains(t, ddl, "CREATE POLICY rls_folders_delete ON folders FOR DELETE USING (true)")

	// Idempotent reapplication.
	assert.Equal(t, 4, strings.Count(ddl, "DROP POLICY IF EXISTS"))
}

func TestAcquire_SetsAndClearsSessionVariables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("set_config").
		WithArgs(CurrentUserSetting, "user:alice", RequiredMaskSetting, "1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("set_config").
		WithArgs(CurrentUserSetting, "", RequiredMaskSetting, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := identity.WithPrincipal(context.Background(), identity.Principal{
		UserID:       "user:alice",
		RequiredMask: permissions.BitViewer,
	})

	conn, release, err := Acquire(ctx, db)
	require.NoError(t, err)
	require.NotNil(t, conn)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_UnauthenticatedSetsEmptyStrings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Empty strings, never a wildcard.
	mock.ExpectExec("set_config").
		WithArgs(CurrentUserSetting, "", RequiredMaskSetting, "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("set_config").
		WithArgs(CurrentUserSetting, "", RequiredMaskSetting, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, release, err := Acquire(context.Background(), db)
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}
