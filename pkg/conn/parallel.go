package conn

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when none is given.
const DefaultWorkers = 4

// RunParallel runs already-built queries on a bounded pool of workers. Each
// worker dials its own connection, so the caller's connection is never
// shared. Results are returned in query order; the first failure cancels the
// remaining work.
func RunParallel(ctx context.Context, dial Dialer, queries []string, workers int) ([]*ResultSet, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(queries) {
		workers = len(queries)
	}

	results := make([]*ResultSet, len(queries))
	jobs := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range queries {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			c, err := dial(gctx)
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			for i := range jobs {
				rs, err := c.Query(gctx, queries[i])
				if err != nil {
					return err
				}
				results[i] = rs
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
