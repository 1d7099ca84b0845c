package util

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestParallelMapKeepsOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results := ParallelMap(context.Background(), 3, items, func(ctx context.Context, n int) (int, error) {
		return n * 10, nil
	})
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("item %d: %v", i, r.Err)
		}
		if r.Value != items[i]*10 {
			t.Errorf("item %d: got %d, want %d", i, r.Value, items[i]*10)
		}
	}
}

func TestParallelMapCapturesItemFailures(t *testing.T) {
	boom := errors.New("boom")
	results := ParallelMap(context.Background(), 2, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("unexpected error for succeeding items")
	}
	if errors.Cause(results[1].Err) != boom {
		t.Errorf("got %v, want boom", results[1].Err)
	}
}

func TestParallelMapHonorsLimit(t *testing.T) {
	var active, max int64
	items := make([]int, 20)
	ParallelMap(context.Background(), 4, items, func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt64(&active, 1)
		for {
			old := atomic.LoadInt64(&max)
			if cur <= old || atomic.CompareAndSwapInt64(&max, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return 0, nil
	})
	if max > 4 {
		t.Errorf("observed %d concurrent calls, limit was 4", max)
	}
}

func TestParallelMapExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := ParallelMap(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("item %d: expected context error", i)
		}
	}
}
