package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForEach_RunsAllItems(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	errs := ForEach(context.Background(), []int{1, 2, 3, 4, 5}, 3, func(_ context.Context, n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		return nil
	})

	assert.Empty(t, errs)
	assert.Len(t, seen, 5)
}

func TestForEach_CollectsErrorsWithoutStopping(t *testing.T) {
	var processed int64

	errs := ForEach(context.Background(), []int{1, 2, 3, 4}, 2, func(_ context.Context, n int) error {
		atomic.AddInt64(&processed, 1)
		if n%2 == 0 {
			return errors.New("even item failed")
		}
		return nil
	})

	assert.Len(t, errs, 2)
	assert.Equal(t, int64(4), processed)
}

func TestForEach_RecoversPanics(t *testing.T) {
	errs := ForEach(context.Background(), []int{1, 2}, 1, func(_ context.Context, n int) error {
		if n == 1 {
			panic("worker exploded")
		}
		return nil
	})

	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "worker exploded")
}

func TestForEach_BoundsConcurrency(t *testing.T) {
	var current, peak int64

	ForEach(context.Background(), make([]int, 20), 3, func(_ context.Context, _ int) error {
		c := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if c <= p || atomic.CompareAndSwapInt64(&peak, p, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return nil
	})

	assert.LessOrEqual(t, peak, int64(3))
}

func TestGo_SignalsCompletionAndRecovers(t *testing.T) {
	done := Go(context.Background(), func(_ context.Context) {
		panic("loop crashed")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}
}
