package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mosaicdocs/mosaic/pkg/async"
	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/permissions"
)

// Options tunes the sync engine.
type Options struct {
	// Interval between iterations. Defaults to 10 seconds.
	Interval time.Duration

	// Workers bounds concurrent reconciliation targets. Defaults to 4.
	Workers int
}

// Engine converts the authorization store's change feed into the local
// permission cache. Each iteration reads the feed from the stored checkpoint,
// re-derives the full entry set for every object and user touched by a
// change, and swaps those entries in place. Because every target is fully
// re-derived from the store, replaying the same window converges to the same
// cache state.
//
// The checkpoint candidate is captured before the feed is read, so a tuple
// written during the iteration falls into the next window instead of being
// lost. The checkpoint is persisted only after the whole iteration succeeds;
// a feed or cache failure leaves it in place and the next iteration retries
// the window.
type Engine struct {
	authz       fga.Client
	cache       CacheStore
	checkpoints CheckpointStore
	log         *observability.Logger
	metrics     *observability.Metrics
	opts        Options

	now func() time.Time
}

type objectKey struct {
	Type string
	ID   string
}

// NewEngine creates a sync engine.
func NewEngine(authz fga.Client, cache CacheStore, checkpoints CheckpointStore, log *observability.Logger, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	return &Engine{
		authz:       authz,
		cache:       cache,
		checkpoints: checkpoints,
		log:         log.WithField("component", "syncer"),
		opts:        opts,
		now:         time.Now,
	}
}

// SetMetrics attaches Prometheus metrics. Optional.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Run iterates until ctx is cancelled. A failed iteration is logged and
// retried on the next tick; it never stops the loop.
func (e *Engine) Run(ctx context.Context) {
	e.log.WithField("interval", e.opts.Interval.String()).Info("permission sync started")

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		if err := e.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.WithError(err).Warn("sync iteration failed")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			e.log.Info("permission sync stopped")
			return
		}
	}
}

// RunOnce performs a single iteration.
func (e *Engine) RunOnce(ctx context.Context) error {
	since, err := e.checkpoints.Load(ctx, CheckpointKey)
	if err != nil {
		e.countIteration("error")
		return err
	}

	// Candidate checkpoint, captured before the read so concurrent writes
	// land in the next window.
	next := e.now()
	if e.metrics != nil && !since.IsZero() {
		e.metrics.SyncLagSeconds.Set(next.Sub(since).Seconds())
	}

	changes, err := e.authz.ReadChanges(ctx, since)
	if err != nil {
		e.countIteration("error")
		return fmt.Errorf("change feed unavailable: %w", err)
	}
	if e.metrics != nil {
		e.metrics.SyncChangesTotal.Add(float64(len(changes)))
	}

	objects, users := e.partition(changes)

	objectErrs := async.ForEach(ctx, objects, e.opts.Workers, e.reconcileObject)
	userErrs := async.ForEach(ctx, users, e.opts.Workers, e.reconcileUser)

	if failed := append(objectErrs, userErrs...); len(failed) > 0 {
		for _, ferr := range failed {
			e.log.WithError(ferr).Warn("reconciliation target failed")
		}
		e.countIteration("error")
		return fmt.Errorf("%d of %d reconciliation targets failed", len(failed), len(objects)+len(users))
	}

	if err := e.checkpoints.Save(ctx, CheckpointKey, next); err != nil {
		e.countIteration("error")
		return err
	}

	e.countIteration("success")
	if len(changes) > 0 {
		e.log.WithFields(map[string]interface{}{
			"changes": len(changes),
			"objects": len(objects),
			"users":   len(users),
		}).Debug("sync iteration complete")
	}
	return nil
}

// partition reduces the change window to the distinct reconciliation
// targets: objects of tracked types, and user subjects. Malformed or
// untracked entries are counted and skipped, never fatal.
func (e *Engine) partition(changes []fga.TupleChange) ([]objectKey, []string) {
	objectSet := make(map[objectKey]struct{})
	userSet := make(map[string]struct{})

	for _, c := range changes {
		typ, id, ok := fga.SplitRef(c.TupleKey.Object)
		switch {
		case !ok:
			e.countSkip("malformed")
			e.log.WithField("object", c.TupleKey.Object).Debug("skipping malformed change entry")
		case permissions.TrackedRelations(typ) == nil:
			e.countSkip("untracked_type")
		default:
			objectSet[objectKey{Type: typ, ID: id}] = struct{}{}
		}

		if fga.IsUserRef(c.TupleKey.User) {
			userSet[c.TupleKey.User] = struct{}{}
		}
	}

	objects := make([]objectKey, 0, len(objectSet))
	for k := range objectSet {
		objects = append(objects, k)
	}
	users := make([]string, 0, len(userSet))
	for u := range userSet {
		users = append(users, u)
	}
	return objects, users
}

// reconcileObject re-derives every user's mask on one object from the
// store's tracked relations and swaps the object's cache rows.
func (e *Engine) reconcileObject(ctx context.Context, key objectKey) error {
	start := time.Now()

	masks := make(map[string]permissions.Mask)
	for _, relation := range permissions.TrackedRelations(key.Type) {
		holders, err := e.authz.ListUsers(ctx, key.Type, key.ID, relation, "user")
		if err != nil {
			return fmt.Errorf("failed to list %s holders of %s:%s: %w", relation, key.Type, key.ID, err)
		}
		bit := permissions.RelationBit(relation)
		for _, user := range holders {
			masks[user] |= bit
		}
	}

	entries := make([]Entry, 0, len(masks))
	for user, mask := range masks {
		entries = append(entries, Entry{ObjectType: key.Type, ObjectID: key.ID, UserID: user, Mask: mask})
	}

	if err := e.cache.ReplaceForObject(ctx, key.Type, key.ID, entries); err != nil {
		return fmt.Errorf("failed to swap cache for %s:%s: %w", key.Type, key.ID, err)
	}
	e.observeReconcile("object", start)
	return nil
}

// reconcileUser re-derives one user's masks across every tracked type,
// following the store's own inheritance evaluation, and swaps the user's
// cache rows.
func (e *Engine) reconcileUser(ctx context.Context, userRef string) error {
	start := time.Now()

	masks := make(map[objectKey]permissions.Mask)
	for _, kind := range permissions.Kinds() {
		for _, relation := range kind.TrackedRelations {
			objects, err := e.authz.ListObjects(ctx, userRef, relation, kind.Name)
			if err != nil {
				return fmt.Errorf("failed to list %s %s objects for %s: %w", kind.Name, relation, userRef, err)
			}
			bit := permissions.RelationBit(relation)
			for _, ref := range objects {
				typ, id, ok := fga.SplitRef(ref)
				if !ok {
					e.countSkip("malformed")
					continue
				}
				masks[objectKey{Type: typ, ID: id}] |= bit
			}
		}
	}

	entries := make([]Entry, 0, len(masks))
	for key, mask := range masks {
		entries = append(entries, Entry{ObjectType: key.Type, ObjectID: key.ID, UserID: userRef, Mask: mask})
	}

	if err := e.cache.ReplaceForUser(ctx, userRef, entries); err != nil {
		return fmt.Errorf("failed to swap cache for %s: %w", userRef, err)
	}
	e.observeReconcile("user", start)
	return nil
}

func (e *Engine) countIteration(status string) {
	if e.metrics != nil {
		e.metrics.SyncIterationsTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) countSkip(reason string) {
	if e.metrics != nil {
		e.metrics.SyncSkippedTotal.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) observeReconcile(target string, start time.Time) {
	if e.metrics != nil {
		e.metrics.SyncReconcileSeconds.WithLabelValues(target).Observe(time.Since(start).Seconds())
	}
}
