package charx

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/cardforge/internal/errors"
	"github.com/hpungsan/cardforge/internal/uri"
)

// Fetcher downloads a remote asset. Implementations own timeouts and retries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// fetchRemote fills buffers of http(s) assets in batches of FetchConcurrency. Each batch
// runs to completion before the next starts. A failed fetch leaves that asset without a
// buffer and adds a warning; only cancellation aborts the whole call.
func fetchRemote(ctx context.Context, res *Result, opts Options) error {
	var targets []int
	for i, a := range res.Assets {
		p := uri.Parse(a.Descriptor.URI)
		if !p.IsRemote() || a.Found() {
			continue
		}
		if !p.IsSafe(opts.Safety) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("asset %q not fetched: %s is not allowed", a.Descriptor.Name, p.Scheme))
			continue
		}
		targets = append(targets, i)
	}

	batch := opts.FetchConcurrency
	if batch <= 0 {
		batch = DefaultFetchConcurrency
	}
	maxSize := opts.Limits.MaxAssetSize

	for start := 0; start < len(targets); start += batch {
		if ctx.Err() != nil {
			return errors.NewCancelled("remote asset fetch")
		}
		end := min(start+batch, len(targets))

		failures := make([]error, end-start)
		var g errgroup.Group
		for j, idx := range targets[start:end] {
			g.Go(func() error {
				url := res.Assets[idx].Path
				data, err := opts.Fetcher.Fetch(ctx, url)
				switch {
				case err != nil:
					failures[j] = errors.NewRemoteFetchFailed(url, err)
				case maxSize > 0 && int64(len(data)) > maxSize:
					failures[j] = errors.NewSizeLimitExceeded("asset", url, maxSize, int64(len(data)))
				default:
					res.Assets[idx].Buffer = data
				}
				return nil
			})
		}
		_ = g.Wait()

		for _, err := range failures {
			if err != nil {
				res.Warnings = append(res.Warnings, err.Error())
			}
		}
	}
	return nil
}
