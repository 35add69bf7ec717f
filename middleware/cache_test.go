package middleware

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ski-ext/streamhttp/cache"
	"github.com/ski-ext/streamhttp/protocol"
	"github.com/ski-ext/streamhttp/stream"
)

// fakeStrategy returns a canned Response per call and counts invocations,
// standing in for an H2/H3 strategy in tests.
type fakeStrategy struct {
	calls     int
	status    int
	header    map[string][]string
	body      []byte
}

func (f *fakeStrategy) ProtocolName() string        { return "fake" }
func (f *fakeStrategy) SupportsPush() bool          { return false }
func (f *fakeStrategy) MaxConcurrentStreams() uint32 { return 1 }

func (f *fakeStrategy) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	f.calls++
	resp := &protocol.Response{Status: f.status}
	header := f.header
	resp.Headers = stream.WithChannel[protocol.HeaderChunk](0, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {
		for name, vals := range header {
			for _, v := range vals {
				send.Emit(ctx, protocol.HeaderChunk{Name: name, Value: v})
			}
		}
	})
	body := f.body
	resp.Body = stream.WithChannel[protocol.BodyChunk](0, func(ctx context.Context, send stream.Sender[protocol.BodyChunk]) {
		send.Emit(ctx, protocol.BodyChunk{Data: body, Final: true})
	})
	resp.Trailers = stream.WithChannel[protocol.HeaderChunk](0, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {})
	return resp, nil
}

func newGetRequest(t *testing.T, raw string) *protocol.Request {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return &protocol.Request{Method: protocol.MethodGet, URL: u, Header: make(map[string][]string)}
}

func drainBody(t *testing.T, resp *protocol.Response) []byte {
	t.Helper()
	var out []byte
	for {
		c, ok := resp.Body.Next(context.Background())
		if !ok {
			return out
		}
		require.False(t, c.IsError())
		out = append(out, c.Data...)
		if c.Final {
			return out
		}
	}
}

func TestCacheMiddlewareMissThenHit(t *testing.T) {
	inner := &fakeStrategy{
		status: http.StatusOK,
		header: map[string][]string{"Cache-Control": {"max-age=60"}},
		body:   []byte("hello"),
	}
	c := cache.New(0, 0)
	s := NewCache(c).Wrap(inner)

	req := newGetRequest(t, "https://example.com/resource")

	resp, err := s.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), drainBody(t, resp))
	assert.Equal(t, 1, inner.calls)

	resp2, err := s.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), drainBody(t, resp2))
	assert.Equal(t, 1, inner.calls, "fresh hit must not re-invoke the wrapped strategy")
}

func TestCacheMiddlewareSkipsNonGetMethods(t *testing.T) {
	inner := &fakeStrategy{status: http.StatusOK, body: []byte("ok")}
	c := cache.New(0, 0)
	s := NewCache(c).Wrap(inner)

	u, _ := url.Parse("https://example.com/resource")
	req := &protocol.Request{Method: protocol.MethodPost, URL: u, Header: make(map[string][]string)}

	_, err := s.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = s.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCacheMiddlewareDoesNotCacheUncacheableResponses(t *testing.T) {
	inner := &fakeStrategy{
		status: http.StatusOK,
		header: map[string][]string{"Cache-Control": {"no-store"}},
		body:   []byte("secret"),
	}
	c := cache.New(0, 0)
	s := NewCache(c).Wrap(inner)

	req := newGetRequest(t, "https://example.com/secret")
	_, err := s.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = s.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "no-store responses must not short-circuit later requests")
}
