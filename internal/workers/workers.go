// Package workers runs small, bounded fan-outs whose results are combined
// only after every task has finished.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every item with at most limit calls in flight (limit <= 0
// means unbounded) and returns the results in input order. Every task runs to
// completion; all task errors are joined into the returned error.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, i int, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i], errs[i] = call(func() (R, error) { return fn(ctx, i, item) })
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

// MapSequential is the single-goroutine counterpart of Map, used for
// diagnostics. It also visits every item and joins all errors.
func MapSequential[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, i int, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	var errs []error
	for i, item := range items {
		r, err := call(func() (R, error) { return fn(ctx, i, item) })
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = r
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

// Both runs a and b concurrently, waits for both and joins their errors.
func Both[A, B any](ctx context.Context, a func(context.Context) (A, error), b func(context.Context) (B, error)) (A, B, error) {
	var (
		ra   A
		rb   B
		errA error
		errB error
		g    errgroup.Group
	)
	g.Go(func() error {
		ra, errA = call(func() (A, error) { return a(ctx) })
		return nil
	})
	g.Go(func() error {
		rb, errB = call(func() (B, error) { return b(ctx) })
		return nil
	})
	_ = g.Wait()

	if err := errors.Join(errA, errB); err != nil {
		var za A
		var zb B
		return za, zb, err
	}
	return ra, rb, nil
}

// call converts a panic in fn into an error so one task cannot take down
// the process while its siblings are still running.
func call[R any](fn func() (R, error)) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("worker panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn()
}
