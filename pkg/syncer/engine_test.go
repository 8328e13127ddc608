package syncer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func newTestEngine() (*Engine, *fga.Memory, *MemoryCache, *MemoryCheckpoints) {
	authz := fga.NewMemory()
	cache := NewMemoryCache()
	checkpoints := NewMemoryCheckpoints()
	e := NewEngine(authz, cache, checkpoints, testLogger(), Options{Workers: 2})
	return e, authz, cache, checkpoints
}

func write(t *testing.T, authz *fga.Memory, user, relation, object string) {
	t.Helper()
	require.NoError(t, authz.Write(context.Background(), []fga.TupleKey{
		{User: user, Relation: relation, Object: object},
	}, nil))
}

func TestRunOnceAggregatesRelationBits(t *testing.T) {
	e, authz, cache, _ := newTestEngine()
	write(t, authz, "user:alice", "viewer", "document:d1")
	write(t, authz, "user:alice", "editor", "document:d1")
	write(t, authz, "user:bob", "owner", "document:d1")

	require.NoError(t, e.RunOnce(context.Background()))

	assert.Equal(t, permissions.BitViewer|permissions.BitEditor, cache.Mask("document", "d1", "user:alice"))
	assert.Equal(t, permissions.BitOwner, cache.Mask("document", "d1", "user:bob"))
}

func TestRunOnceUntrackedRelationProducesNoBits(t *testing.T) {
	e, authz, cache, _ := newTestEngine()
	// A structural tuple: the subject is an object, not a user, and the
	// relation carries no mask bit.
	write(t, authz, "folder:F", "parent", "document:d1")

	require.NoError(t, e.RunOnce(context.Background()))
	assert.Zero(t, cache.Len())
}

func TestRunOnceRevocationClearsMask(t *testing.T) {
	e, authz, cache, _ := newTestEngine()
	write(t, authz, "user:alice", "viewer", "document:d1")
	require.NoError(t, e.RunOnce(context.Background()))
	require.NotZero(t, cache.Mask("document", "d1", "user:alice"))

	require.NoError(t, authz.Write(context.Background(), nil, []fga.TupleKey{
		{User: "user:alice", Relation: "viewer", Object: "document:d1"},
	}))
	require.NoError(t, e.RunOnce(context.Background()))

	assert.Zero(t, cache.Mask("document", "d1", "user:alice"))
	assert.Zero(t, cache.Len())
}

func TestRunOnceSkipsMalformedEntries(t *testing.T) {
	e, authz, cache, checkpoints := newTestEngine()
	authz.AppendChange(fga.TupleChange{
		TupleKey:  fga.TupleKey{User: "user:alice", Relation: "viewer", Object: "not-a-ref"},
		Operation: "TUPLE_OPERATION_WRITE",
	})
	authz.AppendChange(fga.TupleChange{
		TupleKey:  fga.TupleKey{User: "user:alice", Relation: "viewer", Object: "unknown_type:x"},
		Operation: "TUPLE_OPERATION_WRITE",
	})

	require.NoError(t, e.RunOnce(context.Background()))

	// Malformed and untracked entries never fail the iteration, and the
	// checkpoint still advances past them.
	cp, err := checkpoints.Load(context.Background(), CheckpointKey)
	require.NoError(t, err)
	assert.False(t, cp.IsZero())
	// The user subject was well-formed, so user reconciliation ran; it
	// derives nothing from the store.
	assert.Zero(t, cache.Len())
}

func TestRunOnceFeedFailureKeepsCheckpoint(t *testing.T) {
	e, authz, _, checkpoints := newTestEngine()
	authz.ReadChangesErr = errors.New("store unreachable")

	err := e.RunOnce(context.Background())
	require.Error(t, err)

	cp, loadErr := checkpoints.Load(context.Background(), CheckpointKey)
	require.NoError(t, loadErr)
	assert.True(t, cp.IsZero(), "checkpoint must not advance past an unread window")
}

func TestRunOnceCacheFailureKeepsCheckpoint(t *testing.T) {
	e, authz, cache, checkpoints := newTestEngine()
	write(t, authz, "user:alice", "viewer", "document:d1")
	cache.ReplaceErr = errors.New("db down")

	err := e.RunOnce(context.Background())
	require.Error(t, err)

	cp, loadErr := checkpoints.Load(context.Background(), CheckpointKey)
	require.NoError(t, loadErr)
	assert.True(t, cp.IsZero())

	// Once the cache recovers, the retried window converges.
	cache.ReplaceErr = nil
	require.NoError(t, e.RunOnce(context.Background()))
	assert.Equal(t, permissions.BitViewer, cache.Mask("document", "d1", "user:alice"))
}

func TestRunOnceCheckpointCapturedBeforeRead(t *testing.T) {
	e, authz, _, checkpoints := newTestEngine()

	feedTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engineTime := feedTime.Add(-time.Second)
	authz.Now = func() time.Time { return feedTime }
	e.now = func() time.Time { return engineTime }

	write(t, authz, "user:alice", "viewer", "document:d1")
	require.NoError(t, e.RunOnce(context.Background()))

	cp, err := checkpoints.Load(context.Background(), CheckpointKey)
	require.NoError(t, err)
	assert.Equal(t, engineTime, cp)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	e, authz, cache, _ := newTestEngine()
	write(t, authz, "user:alice", "viewer", "folder:F")
	write(t, authz, "user:alice", "owner", "folder:F")

	require.NoError(t, e.RunOnce(context.Background()))
	first := cache.Mask("folder", "F", "user:alice")

	// Replaying the same window changes nothing.
	require.NoError(t, e.RunOnce(context.Background()))
	assert.Equal(t, first, cache.Mask("folder", "F", "user:alice"))
	assert.Equal(t, permissions.BitViewer|permissions.BitOwner, first)
}

func TestRunOnceGroupMembership(t *testing.T) {
	e, authz, cache, _ := newTestEngine()
	write(t, authz, "user:carol", "member", "group:eng")
	write(t, authz, "user:carol", "owner", "group:eng")

	require.NoError(t, e.RunOnce(context.Background()))

	assert.Equal(t, permissions.BitOwner|permissions.BitMember, cache.Mask("group", "eng", "user:carol"))
}
