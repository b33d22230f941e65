package volume

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// VerifyOptions tunes Verify.
type VerifyOptions struct {
	// Workers bounds concurrent brick reads. Zero means GOMAXPROCS.
	Workers int

	// BytesPerSecond throttles decoded bytes per second. Zero means
	// unthrottled.
	BytesPerSecond int

	// Progress, if set, is called from the worker goroutines after each
	// brick with the number of bricks checked so far and the total.
	Progress func(done, total int)
}

// Verify reads every brick of every level and checks it decodes to the
// expected size. It returns the first failure.
func Verify(ctx context.Context, ds Dataset, opts VerifyOptions) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var keys []BrickKey
	largest := 0
	for lod := 0; lod < ds.LODCount(); lod++ {
		for _, k := range Bricks(ds, lod) {
			keys = append(keys, k)
			largest = max(largest, int(BrickBytes(ds, k)))
		}
	}

	var limiter *rate.Limiter
	if opts.BytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.BytesPerSecond), max(opts.BytesPerSecond, largest))
	}

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			want := BrickBytes(ds, key)
			if limiter != nil {
				if err := limiter.WaitN(ctx, int(want)); err != nil {
					return err
				}
			}
			data, err := ds.Brick(key)
			if err != nil {
				return fmt.Errorf("volume: verify %s brick %v: %w", ds.Path(), key, err)
			}
			if uint64(len(data)) != want {
				return fmt.Errorf("%w: brick %v decoded to %d bytes, want %d", ErrFormat, key, len(data), want)
			}
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), len(keys))
			}
			return nil
		})
	}
	return g.Wait()
}
