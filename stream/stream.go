// Package stream implements the bounded, single-producer channel primitive
// used throughout the client: protocol engines, the JSONPath evaluator, and
// the response cache all hand their consumers a *Stream[C] instead of an
// ad hoc callback or an unbounded slice.
package stream

import "context"

// Chunk is the universal failure-reporting contract for streams: every
// protocol-level or domain-level element traveling through a Stream must be
// able to report whether it is an error, and if so carry a message.
type Chunk interface {
	IsError() bool
	ErrorMessage() string
}

// DefaultCapacity is the fixed channel capacity used when callers don't
// specify one.
const DefaultCapacity = 1024

// Sender is the producer-side handle passed into the function given to
// WithChannel. Producers call Emit to push a chunk; Emit blocks (providing
// backpressure) if the channel is full.
type Sender[C Chunk] struct {
	ch chan<- C
}

// Emit pushes a chunk onto the stream. It blocks until there is capacity or
// ctx is cancelled. A cancelled context silently drops the chunk — the
// producer is expected to return shortly after.
func (s Sender[C]) Emit(ctx context.Context, c C) {
	select {
	case s.ch <- c:
	case <-ctx.Done():
	}
}

// Stream is a bounded, single-producer queue of chunks. Consumers drive it
// with Next (blocking) or TryNext (non-blocking); Collect drains it
// entirely.
type Stream[C Chunk] struct {
	ch     <-chan C
	cancel context.CancelFunc
}

// WithChannel creates a stream of the given capacity and synchronously
// spawns producer as a goroutine, handing it a Sender. When producer
// returns, the channel is closed (via a deferred close in the spawned
// goroutine) and the stream is terminated. Capacity <= 0 uses
// DefaultCapacity.
func WithChannel[C Chunk](capacity int, producer func(ctx context.Context, send Sender[C])) *Stream[C] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan C, capacity)
	go func() {
		defer close(ch)
		producer(ctx, Sender[C]{ch: ch})
	}()
	return &Stream[C]{ch: ch, cancel: cancel}
}

// Next blocks until the next chunk is available, the stream terminates, or
// ctx is cancelled. ok is false once the stream is exhausted.
func (s *Stream[C]) Next(ctx context.Context) (c C, ok bool) {
	select {
	case v, open := <-s.ch:
		return v, open
	case <-ctx.Done():
		var zero C
		return zero, false
	}
}

// TryNext performs a single non-blocking read. ok is false if no chunk is
// immediately available (the stream may still be open).
func (s *Stream[C]) TryNext() (c C, ok bool) {
	select {
	case v, open := <-s.ch:
		return v, open
	default:
		var zero C
		return zero, false
	}
}

// Collect drains the stream to a slice. It blocks until the stream
// terminates or ctx is cancelled.
func (s *Stream[C]) Collect(ctx context.Context) []C {
	var out []C
	for {
		c, ok := s.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

// Range iterates the stream's chunks, matching Go 1.23's range-over-func
// iterator shape. Usage: for c := range s.Range(ctx) { ... }.
func (s *Stream[C]) Range(ctx context.Context) func(yield func(C) bool) {
	return func(yield func(C) bool) {
		for {
			c, ok := s.Next(ctx)
			if !ok {
				return
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Close releases the consumer side of the stream: the producer's next Emit
// will observe the cancelled context and return, tearing down whatever
// connection resource it held. It is safe to call Close multiple times.
func (s *Stream[C]) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
