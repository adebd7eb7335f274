package wait

import (
	"context"
	"errors"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one wait started by All.
type Result[R any] struct {
	ResourceID string
	Resource   R
	Err        error
	Duration   time.Duration
}

// All runs ForStatus for every spec with at most concurrency waits in
// flight. One failing wait does not stop the others. The returned error
// joins every individual failure.
func All[R any](ctx context.Context, w *Waiter, specs []Spec[R], concurrency int) ([]Result[R], error) {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrencyLimit
	}

	results := make([]Result[R], len(specs))

	var group errgroup.Group

	group.SetLimit(concurrency)

	for index, spec := range specs {
		group.Go(func() error {
			start := w.clock.Now()
			resource, err := ForStatus(ctx, w, spec)

			results[index] = Result[R]{
				ResourceID: spec.ResourceID,
				Resource:   resource,
				Err:        err,
				Duration:   w.clock.Now().Sub(start),
			}

			return nil
		})
	}

	_ = group.Wait()

	errs := make([]error, 0, len(results))

	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}

	return results, errors.Join(errs...)
}
