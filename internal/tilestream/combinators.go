package tilestream

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

// MapCoord rewrites each item's coordinate, keeping its value and order.
func MapCoord[T any](ctx context.Context, s Stream[T], fn func(coord.TileCoord) coord.TileCoord) Stream[T] {
	out := make(chan Item[T])
	go func() {
		defer close(out)
		for it := range s.ch {
			if it.Err == nil {
				it.Coord = fn(it.Coord)
			}
			if !send(ctx, out, it) {
				return
			}
		}
	}()
	return Stream[T]{ch: out}
}

// FilterCoord keeps only items whose coordinate satisfies pred, evaluated
// cooperatively on the consuming goroutine.
func FilterCoord[T any](ctx context.Context, s Stream[T], pred func(context.Context, coord.TileCoord) (bool, error)) Stream[T] {
	out := make(chan Item[T])
	go func() {
		defer close(out)
		for it := range s.ch {
			if it.Err != nil {
				if !send(ctx, out, it) {
					return
				}
				continue
			}
			ok, err := pred(ctx, it.Coord)
			if err != nil {
				send(ctx, out, Item[T]{Coord: it.Coord, Err: err})
				return
			}
			if ok {
				if !send(ctx, out, it) {
					return
				}
			}
		}
	}()
	return Stream[T]{ch: out}
}

// MapItemParallel applies fn to every item's value, CPU-bound parallel,
// unordered. Items already carrying an error pass through unchanged.
func MapItemParallel[T, U any](ctx context.Context, s Stream[T], limits ConcurrencyLimits, fn func(context.Context, coord.TileCoord, T) (U, error)) Stream[U] {
	out := make(chan Item[U])
	workers := limits.CPUBound
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case it, ok := <-s.ch:
					if !ok {
						return nil
					}
					if it.Err != nil {
						send(ctx, out, Item[U]{Coord: it.Coord, Err: it.Err})
						continue
					}
					v, err := fn(gctx, it.Coord, it.Value)
					send(ctx, out, Item[U]{Coord: it.Coord, Value: v, Err: err})
				}
			}
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
	}()
	return Stream[U]{ch: out}
}

// FilterMapParallelTry is the fallible parallel filter-map: fn may drop an
// item (ok=false) or fail outright. The first fn error is emitted and then
// aborts the remaining work; items already carrying an upstream error pass
// through without triggering the abort.
func FilterMapParallelTry[T, U any](ctx context.Context, s Stream[T], limits ConcurrencyLimits, fn func(context.Context, coord.TileCoord, T) (U, bool, error)) Stream[U] {
	out := make(chan Item[U])
	workers := limits.CPUBound
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case it, ok := <-s.ch:
					if !ok {
						return nil
					}
					if it.Err != nil {
						send(ctx, out, Item[U]{Coord: it.Coord, Err: it.Err})
						continue
					}
					v, keep, err := fn(gctx, it.Coord, it.Value)
					if err != nil {
						send(ctx, out, Item[U]{Coord: it.Coord, Err: err})
						return err
					}
					if keep {
						send(ctx, out, Item[U]{Coord: it.Coord, Value: v})
					}
				}
			}
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
	}()
	return Stream[U]{ch: out}
}

// ForEachBuffered drains the stream in chunks of up to n items, calling fn
// once per chunk. It stops at the first error fn or the stream returns.
func ForEachBuffered[T any](ctx context.Context, s Stream[T], n int, fn func(context.Context, []Item[T]) error) error {
	if n < 1 {
		n = 1
	}
	batch := make([]Item[T], 0, n)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := fn(ctx, batch)
		batch = batch[:0]
		return err
	}
	for it := range s.ch {
		if it.Err != nil {
			return it.Err
		}
		batch = append(batch, it)
		if len(batch) == n {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// DrainAndCount consumes the whole stream, counting items and returning the
// first error encountered, if any.
func DrainAndCount[T any](s Stream[T]) (int, error) {
	count := 0
	for it := range s.ch {
		if it.Err != nil {
			return count, it.Err
		}
		count++
	}
	return count, nil
}

// ToVec collects the whole stream into a slice, stopping at the first
// error.
func ToVec[T any](s Stream[T]) ([]Item[T], error) {
	var out []Item[T]
	for it := range s.ch {
		if it.Err != nil {
			return out, it.Err
		}
		out = append(out, it)
	}
	return out, nil
}

// UnwrapResults lifts Item[T] to plain T, silently dropping items that
// carry an error.
func UnwrapResults[T any](ctx context.Context, s Stream[T]) Stream[T] {
	out := make(chan Item[T])
	go func() {
		defer close(out)
		for it := range s.ch {
			if it.Err != nil {
				continue
			}
			if !send(ctx, out, it) {
				return
			}
		}
	}()
	return Stream[T]{ch: out}
}
