// Package parallel runs independent work items concurrently and waits for all
// of them, keeping each item's failure to itself.
package parallel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result pairs an item's output with the error it produced, if any.
type Result[T any] struct {
	Value T
	Err   error
}

// Map calls fn for every item with at most limit calls in flight (limit <= 0
// means one goroutine per item). It returns once every call has finished.
// Results keep the order of items. An error from one item never cancels the
// others; only ctx does. A panic in fn is recovered and reported as that
// item's error.
func Map[I, O any](ctx context.Context, items []I, limit int, fn func(context.Context, I) (O, error)) []Result[O] {
	results := make([]Result[O], len(items))
	if len(items) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result[O]{Err: fmt.Errorf("parallel: item %d panicked: %v", i, r)}
				}
			}()
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			results[i] = Result[O]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Values returns the values of the successful results, in order.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
