// Package tilestream implements the backpressured tile stream: an
// asynchronous sequence of (TileCoord, T) pairs with combinators for
// sequential and parallel transforms, bounded by concurrency limits.
//
// A Stream is backed by a channel of Items; the producer goroutine blocks
// on an unbuffered or small-buffered send when the consumer falls behind,
// which is this package's backpressure mechanism. Cancelling the context
// passed to a consuming combinator drains and stops the producer.
package tilestream

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

// Item pairs a coordinate with its value. A non-nil Err means the item
// failed to produce a value; T is the zero value in that case.
type Item[T any] struct {
	Coord coord.TileCoord
	Value T
	Err   error
}

// Stream is a single-consume, ordered-by-default asynchronous sequence.
type Stream[T any] struct {
	ch <-chan Item[T]
}

// ConcurrencyLimits bounds how many CPU-bound and I/O-bound tasks a stream's
// parallel combinators may run at once.
type ConcurrencyLimits struct {
	CPUBound int
	IOBound  int
}

// DefaultConcurrencyLimits mirrors runtime.NumCPU()-sized CPU-bound work and
// a generous I/O-bound ceiling, the same shape as the worker-pool sizing
// used by stream consumers that fan out one goroutine per core.
func DefaultConcurrencyLimits(numCPU int) ConcurrencyLimits {
	if numCPU < 1 {
		numCPU = 1
	}
	return ConcurrencyLimits{CPUBound: numCPU, IOBound: numCPU * 4}
}

// Empty returns a stream with no items.
func Empty[T any]() Stream[T] {
	ch := make(chan Item[T])
	close(ch)
	return Stream[T]{ch: ch}
}

// FromSlice returns a stream over a fixed list of items, preserving order.
func FromSlice[T any](items []Item[T]) Stream[T] {
	ch := make(chan Item[T], len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return Stream[T]{ch: ch}
}

// FromChannel wraps an existing channel as a Stream. The channel must be
// closed by its producer when done.
func FromChannel[T any](ch <-chan Item[T]) Stream[T] {
	return Stream[T]{ch: ch}
}

// FromIterCoord applies fn sequentially to each coordinate, emitting only
// the coordinates for which fn returns ok.
func FromIterCoord[T any](ctx context.Context, coords []coord.TileCoord, fn func(context.Context, coord.TileCoord) (T, bool, error)) Stream[T] {
	out := make(chan Item[T])
	go func() {
		defer close(out)
		for _, c := range coords {
			select {
			case <-ctx.Done():
				return
			default:
			}
			v, ok, err := fn(ctx, c)
			if err != nil {
				send(ctx, out, Item[T]{Coord: c, Err: err})
				return
			}
			if ok {
				if !send(ctx, out, Item[T]{Coord: c, Value: v}) {
					return
				}
			}
		}
	}()
	return Stream[T]{ch: out}
}

// FromIterCoordParallel is the CPU-bound parallel counterpart of
// FromIterCoord: fn runs on up to limits.CPUBound goroutines at once and
// results are emitted unordered. The first fn error aborts the remaining
// coordinates.
func FromIterCoordParallel[T any](ctx context.Context, coords []coord.TileCoord, limits ConcurrencyLimits, fn func(context.Context, coord.TileCoord) (T, bool, error)) Stream[T] {
	return fromIterCoordWorkers(ctx, coords, limits.CPUBound, fn)
}

// fromIterCoordWorkers aborts on the first error: the failing item is
// still emitted (so the consumer sees why), then the group context is
// cancelled, the feeder stops handing out coordinates, and the remaining
// workers drain and exit.
func fromIterCoordWorkers[T any](ctx context.Context, coords []coord.TileCoord, workers int, fn func(context.Context, coord.TileCoord) (T, bool, error)) Stream[T] {
	out := make(chan Item[T])
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan coord.TileCoord)
	g, gctx := errgroup.WithContext(ctx)

	go func() {
		defer close(jobs)
		for _, c := range coords {
			select {
			case <-gctx.Done():
				return
			case jobs <- c:
			}
		}
	}()

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for c := range jobs {
				v, ok, err := fn(gctx, c)
				if err != nil {
					send(ctx, out, Item[T]{Coord: c, Err: err})
					return err
				}
				if ok {
					send(ctx, out, Item[T]{Coord: c, Value: v})
				}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
	}()

	return Stream[T]{ch: out}
}

// FromBBoxParallel runs fn for every coordinate in bbox, CPU-bound parallel,
// unordered.
func FromBBoxParallel[T any](ctx context.Context, bbox coord.TileBBox, limits ConcurrencyLimits, fn func(context.Context, coord.TileCoord) (T, bool, error)) Stream[T] {
	return FromIterCoordParallel(ctx, bbox.IntoCoords(), limits, fn)
}

// FromBBoxAsyncParallel is the I/O-bound counterpart of FromBBoxParallel:
// fn is expected to spend its time waiting (range reads, remote fetches)
// rather than computing, so concurrency is bounded by limits.IOBound
// instead of limits.CPUBound.
func FromBBoxAsyncParallel[T any](ctx context.Context, bbox coord.TileBBox, limits ConcurrencyLimits, fn func(context.Context, coord.TileCoord) (T, bool, error)) Stream[T] {
	return fromIterCoordWorkers(ctx, bbox.IntoCoords(), limits.IOBound, fn)
}

// FromStreams flattens a slice of streams into one, preserving the relative
// order of each input stream but interleaving across them as they produce.
func FromStreams[T any](ctx context.Context, streams []Stream[T]) Stream[T] {
	out := make(chan Item[T])
	var g errgroup.Group
	for _, s := range streams {
		s := s
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case it, ok := <-s.ch:
					if !ok {
						return nil
					}
					if !send(ctx, out, it) {
						return nil
					}
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		close(out)
	}()
	return Stream[T]{ch: out}
}

func send[T any](ctx context.Context, out chan<- Item[T], it Item[T]) bool {
	select {
	case out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}
