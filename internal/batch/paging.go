// Package batch holds the run-scoped primitives shared by both pipelines:
// paged collection draining, bounded retries, bounded fan-out with per-item
// failure isolation, and the append-only error sink.
package batch

import "context"

// Page is one slice of a token-continued remote listing. An empty NextToken
// means the source reported no continuation.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// FetchPage fetches the page following pageToken; the first call receives an
// empty token.
type FetchPage[T any] func(ctx context.Context, pageToken string) (Page[T], error)

// CollectAll drains a paged source into a single ordered slice. It assumes no
// known total count and terminates only when the source stops returning a
// continuation token. A failure fetching any page surfaces as a hard error
// for the whole collection; the caller decides whether that aborts the run or
// only the current item.
func CollectAll[T any](ctx context.Context, fetch FetchPage[T]) ([]T, error) {
	var all []T
	token := ""
	for {
		page, err := fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextToken == "" {
			return all, nil
		}
		token = page.NextToken
	}
}
