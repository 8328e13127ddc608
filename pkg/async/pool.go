package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn over items with at most workers concurrent goroutines and
// returns the errors encountered, one per failing item. A failing or
// panicking item never stops the others: callers that fan out reconciliation
// work log per-item failures and move on.
func ForEach[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
					mu.Unlock()
				}
			}()

			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// Always nil: an item failure must not cancel the group.
			return nil
		})
	}

	g.Wait()
	return errs
}

// Go runs fn on its own goroutine with panic recovery and returns a channel
// closed when fn returns. Long-running loops (the permission sync engine)
// are started through this so a panic cannot take the process down.
func Go(ctx context.Context, fn func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			recover()
		}()
		fn(ctx)
	}()
	return done
}
