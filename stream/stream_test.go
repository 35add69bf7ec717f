package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testChunk struct {
	val int
	err string
}

func (c testChunk) IsError() bool        { return c.err != "" }
func (c testChunk) ErrorMessage() string { return c.err }

func TestStreamCollectOrder(t *testing.T) {
	s := WithChannel(4, func(ctx context.Context, send Sender[testChunk]) {
		for i := 0; i < 5; i++ {
			send.Emit(ctx, testChunk{val: i})
		}
	})

	got := s.Collect(context.Background())
	require.Len(t, got, 5)
	for i, c := range got {
		assert.Equal(t, i, c.val)
	}
}

func TestStreamErrorIsInBand(t *testing.T) {
	s := WithChannel(1, func(ctx context.Context, send Sender[testChunk]) {
		send.Emit(ctx, testChunk{val: 1})
		send.Emit(ctx, testChunk{err: "boom"})
	})

	got := s.Collect(context.Background())
	require.Len(t, got, 2)
	assert.False(t, got[0].IsError())
	assert.True(t, got[1].IsError())
	assert.Equal(t, "boom", got[1].ErrorMessage())
}

func TestStreamCloseReleasesProducer(t *testing.T) {
	released := make(chan struct{})
	s := WithChannel(1, func(ctx context.Context, send Sender[testChunk]) {
		defer close(released)
		for i := 0; ; i++ {
			send.Emit(ctx, testChunk{val: i})
			if ctx.Err() != nil {
				return
			}
		}
	})

	_, ok := s.Next(context.Background())
	require.True(t, ok)
	s.Close()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("producer not released after Close")
	}
}

func TestStreamRange(t *testing.T) {
	s := WithChannel(2, func(ctx context.Context, send Sender[testChunk]) {
		send.Emit(ctx, testChunk{val: 1})
		send.Emit(ctx, testChunk{val: 2})
		send.Emit(ctx, testChunk{val: 3})
	})

	var sum int
	for c := range s.Range(context.Background()) {
		sum += c.val
	}
	assert.Equal(t, 6, sum)
}

func TestStreamTryNext(t *testing.T) {
	gate := make(chan struct{})
	s := WithChannel(1, func(ctx context.Context, send Sender[testChunk]) {
		<-gate
		send.Emit(ctx, testChunk{val: 42})
	})

	_, ok := s.TryNext()
	assert.False(t, ok)

	close(gate)
	c, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42, c.val)
}
