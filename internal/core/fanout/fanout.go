// Package fanout runs independent units of work concurrently and waits for
// every one of them to settle.
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Result is the settled outcome of one unit of work.
// Err is non-nil when fn returned an error or panicked.
type Result[R any] struct {
	Value    R
	Err      error
	Panicked bool
}

// PanicError carries a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// All runs fn for every item and returns results in input order.
//
// A failing or panicking item never cancels its siblings. limit bounds the
// number of concurrent calls; 0 or less means no bound.
func All[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			results[i] = run(ctx, item, fn)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func run[T, R any](ctx context.Context, item T, fn func(context.Context, T) (R, error)) (res Result[R]) {
	defer func() {
		if p := recover(); p != nil {
			res = Result[R]{Err: &PanicError{Value: p, Stack: debug.Stack()}, Panicked: true}
		}
	}()
	v, err := fn(ctx, item)
	return Result[R]{Value: v, Err: err}
}
