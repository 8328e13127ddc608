package resources

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectSession(mock sqlmock.Sqlmock) {
	// Session variables are set on acquire and cleared on release.
	mock.ExpectExec("SELECT set_config").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestSQLStoreInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	mock.ExpectExec("INSERT INTO documents").
		WithArgs("d1", "quarterly report", sqlmock.AnyArg(), pq.Array([]string{"folder:F"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSession(mock)

	store := NewSQLStore(db)
	err = store.Insert(asUser("alice"), mustKind(t, "document"), &Resource{
		ID:          "d1",
		Kind:        "document",
		Title:       "quarterly report",
		ParentID:    "F",
		AncestorIDs: []string{"folder:F"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	rows := sqlmock.NewRows([]string{"id", "title", "parent_id", "ancestor_ids"}).
		AddRow("d1", "quarterly report", "F", "{folder:F}")
	mock.ExpectQuery("SELECT id, title, COALESCE").
		WithArgs("d1").
		WillReturnRows(rows)
	expectSession(mock)

	store := NewSQLStore(db)
	r, err := store.Get(asUser("alice"), mustKind(t, "document"), "d1")
	require.NoError(t, err)
	assert.Equal(t, "document", r.Kind)
	assert.Equal(t, "quarterly report", r.Title)
	assert.Equal(t, "F", r.ParentID)
	assert.Equal(t, []string{"folder:F"}, r.AncestorIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	mock.ExpectQuery("SELECT id, title, COALESCE").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "parent_id", "ancestor_ids"}))
	expectSession(mock)

	store := NewSQLStore(db)
	_, err = store.Get(asUser("alice"), mustKind(t, "document"), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreSetParent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	mock.ExpectExec("UPDATE folders SET parent_id").
		WithArgs("f2", sqlmock.AnyArg(), pq.Array([]string{"folder:f1"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSession(mock)

	store := NewSQLStore(db)
	err = store.SetParent(asUser("alice"), mustKind(t, "folder"), "f2", "f1", []string{"folder:f1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSetParentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	mock.ExpectExec("UPDATE folders SET parent_id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectSession(mock)

	store := NewSQLStore(db)
	err = store.SetParent(asUser("alice"), mustKind(t, "folder"), "ghost", "", []string{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	mock.ExpectExec("DELETE FROM groups WHERE id").
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSession(mock)

	store := NewSQLStore(db)
	require.NoError(t, store.Delete(asUser("alice"), mustKind(t, "group"), "g1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectSession(mock)
	rows := sqlmock.NewRows([]string{"id", "name", "parent_id", "ancestor_ids"}).
		AddRow("f1", "root", "", "{}").
		AddRow("f2", "sub", "f1", "{folder:f1}")
	mock.ExpectQuery("SELECT id, name, COALESCE").
		WillReturnRows(rows)
	expectSession(mock)

	store := NewSQLStore(db)
	out, err := store.List(asUser("alice"), mustKind(t, "folder"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "f1", out[0].ID)
	assert.Equal(t, []string{"folder:f1"}, out[1].AncestorIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An unauthenticated context clears both session variables rather than
// leaving them unset, so the policies fail closed.
func TestSQLStoreUnauthenticatedSessionIsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT set_config").
		WithArgs("app.current_user", "", "app.required_mask", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, title, COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "parent_id", "ancestor_ids"}))
	expectSession(mock)

	store := NewSQLStore(db)
	_, err = store.List(context.Background(), mustKind(t, "document"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
