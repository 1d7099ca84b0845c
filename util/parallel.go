package util

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Result holds the outcome of a single item of a ParallelMap call.
type Result[O any] struct {
	Value O
	Err   error
}

// ParallelMap runs fn over items with at most limit concurrent calls and
// captures each item's outcome in the slot matching its input index. A
// failing item never aborts the batch. When ctx expires, items not yet
// started report ctx.Err() and already running items are waited for.
func ParallelMap[I, O any](ctx context.Context, limit int, items []I, fn func(context.Context, I) (O, error)) []Result[O] {
	if limit < 1 {
		limit = 1
	}
	results := make([]Result[O], len(items))
	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	for i := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i].Value, results[i].Err = fn(ctx, items[i])
		}(i)
	}
	wg.Wait()
	return results
}
