package protocol

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBody delivers each entry of reads on its own Read call, then
// returns (0, io.EOF) on a separate subsequent call — the common Reader
// contract RawChunksFromHTTPResponse must handle correctly. onEOF, if set,
// fires exactly once at that terminal call, mimicking net/http only
// populating Response.Trailer once the body has been read to completion.
type scriptedBody struct {
	reads [][]byte
	i     int
	onEOF func()
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if b.i < len(b.reads) {
		n := copy(p, b.reads[b.i])
		b.i++
		return n, nil
	}
	if b.onEOF != nil {
		b.onEOF()
		b.onEOF = nil
	}
	return 0, io.EOF
}

func (b *scriptedBody) Close() error { return nil }

func drainRawChunks(t *testing.T, res *http.Response) []RawChunk {
	t.Helper()
	ch := RawChunksFromHTTPResponse(res)
	ctx := context.Background()
	var out []RawChunk
	for {
		c, ok := ch.Next(ctx)
		require.True(t, ok, "stream ended before RawEnd")
		out = append(out, c)
		if c.Kind == RawEnd || c.Kind == RawError {
			return out
		}
	}
}

func TestRawChunksFromHTTPResponseMarksFinalAcrossSeparateEOFCall(t *testing.T) {
	res := &http.Response{StatusCode: 200, Proto: "HTTP/2.0", Header: http.Header{}, Trailer: http.Header{}}
	body := &scriptedBody{reads: [][]byte{[]byte("hello"), []byte("world")}}
	body.onEOF = func() { res.Trailer.Set("X-Checksum", "abc123") }
	res.Body = body

	chunks := drainRawChunks(t, res)

	var bodyChunks []RawChunk
	var trailerChunk *RawChunk
	for _, c := range chunks {
		switch c.Kind {
		case RawBody:
			bodyChunks = append(bodyChunks, c)
		case RawTrailers:
			cp := c
			trailerChunk = &cp
		}
	}

	require.Len(t, bodyChunks, 2)
	assert.False(t, bodyChunks[0].Final, "non-terminal chunk must not be marked final")
	assert.True(t, bodyChunks[1].Final, "last body chunk must be marked final once EOF is observed")

	var data []byte
	for _, c := range bodyChunks {
		data = append(data, c.Data...)
	}
	assert.Equal(t, "helloworld", string(data))

	require.NotNil(t, trailerChunk, "trailers must be emitted once populated at EOF")
	assert.Equal(t, []string{"abc123"}, trailerChunk.Headers["X-Checksum"])
	assert.Equal(t, RawEnd, chunks[len(chunks)-1].Kind)
}

// eofWithDataBody returns the last chunk and io.EOF in the same call, the
// less common but still valid Reader contract variant.
type eofWithDataBody struct {
	data []byte
	done bool
}

func (b *eofWithDataBody) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	b.done = true
	n := copy(p, b.data)
	return n, io.EOF
}

func (b *eofWithDataBody) Close() error { return nil }

func TestRawChunksFromHTTPResponseMarksFinalWhenEOFArrivesWithData(t *testing.T) {
	res := &http.Response{
		StatusCode: 200,
		Proto:      "HTTP/2.0",
		Header:     http.Header{},
		Trailer:    http.Header{},
		Body:       &eofWithDataBody{data: []byte("payload")},
	}

	chunks := drainRawChunks(t, res)

	var bodyChunks []RawChunk
	for _, c := range chunks {
		if c.Kind == RawBody {
			bodyChunks = append(bodyChunks, c)
		}
	}
	require.Len(t, bodyChunks, 1)
	assert.True(t, bodyChunks[0].Final)
	assert.Equal(t, "payload", string(bodyChunks[0].Data))
}

func TestRawChunksFromHTTPResponseNoTrailersWhenNonePresent(t *testing.T) {
	res := &http.Response{
		StatusCode: 204,
		Proto:      "HTTP/2.0",
		Header:     http.Header{},
		Trailer:    http.Header{},
		Body:       &scriptedBody{},
	}

	chunks := drainRawChunks(t, res)
	for _, c := range chunks {
		assert.NotEqual(t, RawTrailers, c.Kind)
	}
}
