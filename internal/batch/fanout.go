package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cwleong/videosharingflow/internal/models"
)

// FanOut processes every item independently with at most limit workers. A
// body failure for one item is caught at the item boundary, mapped to an
// ErrorRecord and appended to sink; sibling items keep running. FanOut is a
// join point: it returns only after every item has finished, and the return
// value is true when at least one item failed.
//
// A plain errgroup.Group is used rather than errgroup.WithContext: the first
// failure must not cancel siblings, so body errors never reach the group.
//
// Fan-outs nest (pairs over members over files); the effective worker count
// is the product of the per-level limits, which the caller's configuration
// keeps small.
func FanOut[T any](
	ctx context.Context,
	items []T,
	limit int,
	sink *ErrorSink,
	toRecord func(item T, err error) models.ErrorRecord,
	body func(ctx context.Context, item T) error,
) bool {
	if limit < 1 {
		limit = 1
	}
	var failed atomic.Bool
	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, item := range items {
		eg.Go(func() error {
			if err := body(ctx, item); err != nil {
				failed.Store(true)
				sink.Append(toRecord(item, err))
			}
			return nil
		})
	}
	_ = eg.Wait() // bodies never surface errors to the group
	return failed.Load()
}
