// Package workers runs index-range work either inline or across a bounded
// set of goroutines. Callers write results by index, so the output of a
// computation does not depend on the strategy that ran it.
package workers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Strategy executes fn over the range [0, n), possibly split into
// contiguous sub-ranges [lo, hi).
type Strategy interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, lo, hi int) error) error
}

// Sequential runs the whole range in the calling goroutine.
type Sequential struct{}

func (Sequential) Run(ctx context.Context, n int, fn func(ctx context.Context, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	return fn(ctx, 0, n)
}

// Partitioned splits the range into contiguous pieces and runs at most
// Workers of them at once. RangeSize fixes the piece length; when zero the
// range is divided evenly across workers.
type Partitioned struct {
	Workers   int
	RangeSize int
}

func (p Partitioned) Run(ctx context.Context, n int, fn func(ctx context.Context, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Workers, 1))
	for _, r := range p.Ranges(n) {
		lo, hi := r[0], r[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, lo, hi)
		})
	}
	return g.Wait()
}

// Ranges returns the [lo, hi) pieces Partitioned would produce for n.
func (p Partitioned) Ranges(n int) [][2]int {
	if n <= 0 {
		return nil
	}
	workers := max(p.Workers, 1)
	size := p.RangeSize
	if size < 1 {
		size = (n + workers - 1) / workers
	}
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}

// New returns Sequential when workers <= 1 and Partitioned otherwise.
func New(workers, rangeSize int) Strategy {
	if workers <= 1 && rangeSize <= 0 {
		return Sequential{}
	}
	return Partitioned{Workers: workers, RangeSize: rangeSize}
}
