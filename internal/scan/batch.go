package scan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type outcome[T any] struct {
	Value T
	Err   error
}

// settle runs fn over items in consecutive windows of size. Every task of a
// window finishes before the next window starts, and one task failing never
// cancels its siblings. Results keep input order. Windows not yet started
// when ctx is done are skipped and their items carry ctx.Err().
func settle[I, O any](ctx context.Context, items []I, size int, fn func(context.Context, I) (O, error)) []outcome[O] {
	if size <= 0 {
		size = 1
	}
	out := make([]outcome[O], len(items))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				out[i].Err = err
			}
			break
		}
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i] = runTask(ctx, items[i], fn)
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func runTask[I, O any](ctx context.Context, item I, fn func(context.Context, I) (O, error)) (res outcome[O]) {
	defer func() {
		if r := recover(); r != nil {
			res = outcome[O]{Err: fmt.Errorf("scan: task panic: %v", r)}
		}
	}()
	v, err := fn(ctx, item)
	return outcome[O]{Value: v, Err: err}
}
