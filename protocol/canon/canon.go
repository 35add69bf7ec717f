// Package canon turns the tagged raw-chunk stream a protocol strategy
// produces into a canonical protocol.Response: three independent
// substreams (headers, body, trailers) in the order the wire delivered
// them. It also offers a fallback for strategies (or recorded fixtures)
// that only hand over a raw HTTP/1-style byte stream instead of
// pre-tagged chunks.
package canon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/textproto"
	"strconv"

	"github.com/ski-ext/streamhttp/protocol"
	"github.com/ski-ext/streamhttp/stream"
)

// Canonicalize consumes raw, emitting headers first, then body chunks
// (last one with Final set), then trailers, mirroring the on-wire order
// a RawChunk stream already carries. The returned Response's Headers
// stream is drained synchronously up front (so Status is available
// immediately on return); Body and Trailers are produced by a background
// goroutine, matching how a live strategy would stream them.
func Canonicalize(ctx context.Context, raw *stream.Stream[protocol.RawChunk]) (*protocol.Response, error) {
	resp := &protocol.Response{}

	var headers []protocol.HeaderChunk
	for {
		c, ok := raw.Next(ctx)
		if !ok {
			return nil, fmt.Errorf("canonicalize: stream closed before headers")
		}
		if c.Kind == protocol.RawError {
			return nil, fmt.Errorf("canonicalize: %s", c.Message)
		}
		if c.Kind != protocol.RawHeaders {
			return nil, fmt.Errorf("canonicalize: expected headers chunk, got kind %d", c.Kind)
		}
		resp.Status = c.Status
		resp.ProtoVersion = c.Proto
		for name, vals := range c.Headers {
			for _, v := range vals {
				headers = append(headers, protocol.HeaderChunk{Name: name, Value: v})
			}
		}
		break
	}
	resp.Headers = stream.WithChannel(len(headers)+1, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {
		for _, h := range headers {
			send.Emit(ctx, h)
		}
	})

	// trailersReady hands the assembled trailer list from the body
	// producer to the trailers stream's own producer goroutine, so
	// resp.Trailers never needs to be mutated after construction.
	trailersReady := make(chan []protocol.HeaderChunk, 1)

	resp.Body = stream.WithChannel[protocol.BodyChunk](0, func(ctx context.Context, bodySend stream.Sender[protocol.BodyChunk]) {
		var trailersBuf []protocol.HeaderChunk
		var offset int64
		for {
			c, ok := raw.Next(ctx)
			if !ok {
				trailersReady <- trailersBuf
				return
			}
			switch c.Kind {
			case protocol.RawBody:
				n := int64(len(c.Data))
				bodySend.Emit(ctx, protocol.BodyChunk{Data: c.Data, Offset: offset, Final: c.Final})
				offset += n
			case protocol.RawTrailers:
				for name, vals := range c.Headers {
					for _, v := range vals {
						trailersBuf = append(trailersBuf, protocol.HeaderChunk{Name: name, Value: v})
					}
				}
			case protocol.RawEnd:
				trailersReady <- trailersBuf
				return
			case protocol.RawError:
				bodySend.Emit(ctx, protocol.BodyChunk{Final: true, Err: fmt.Errorf("%s", c.Message)})
				trailersReady <- trailersBuf
				return
			}
		}
	})

	resp.Trailers = stream.WithChannel[protocol.HeaderChunk](1, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {
		select {
		case trailers := <-trailersReady:
			for _, h := range trailers {
				send.Emit(ctx, h)
			}
		case <-ctx.Done():
		}
	})
	return resp, nil
}

// ParseRawHTTP1 parses an unparsed HTTP/1-style byte stream: a status
// line, a header block terminated by CRLFCRLF, then the body verbatim.
// It is the fallback path for strategies that hand the canonicalizer raw
// wire bytes instead of pre-tagged chunks (recorded fixtures, the
// teacher's textproto-based ReadRequest/ReadResponse style). Parse
// failures surface as a single final, errored body chunk rather than a
// Go error, per the canonicalizer's contract.
func ParseRawHTTP1(body []byte) *protocol.Response {
	r := bufio.NewReader(bytes.NewReader(body))
	tp := textproto.NewReader(r)

	statusLine, err := tp.ReadLine()
	if err != nil {
		return errResponse(fmt.Sprintf("read status line: %v", err))
	}
	proto, status, ok := cutStatusLine(statusLine)
	if !ok {
		return errResponse(fmt.Sprintf("malformed status line %q", statusLine))
	}
	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return errResponse(fmt.Sprintf("read headers: %v", err))
	}

	resp := &protocol.Response{Status: status, ProtoVersion: proto}
	var headers []protocol.HeaderChunk
	for name, vals := range mimeHeader {
		for _, v := range vals {
			headers = append(headers, protocol.HeaderChunk{Name: name, Value: v})
		}
	}
	resp.Headers = stream.WithChannel(len(headers)+1, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {
		for _, h := range headers {
			send.Emit(ctx, h)
		}
	})

	rest, _ := io.ReadAll(r)

	resp.Body = stream.WithChannel[protocol.BodyChunk](1, func(ctx context.Context, send stream.Sender[protocol.BodyChunk]) {
		send.Emit(ctx, protocol.BodyChunk{Data: rest, Offset: 0, Final: true})
	})
	resp.Trailers = stream.WithChannel[protocol.HeaderChunk](1, func(context.Context, stream.Sender[protocol.HeaderChunk]) {})
	return resp
}

func errResponse(msg string) *protocol.Response {
	resp := &protocol.Response{Status: 0}
	resp.Headers = stream.WithChannel[protocol.HeaderChunk](1, func(context.Context, stream.Sender[protocol.HeaderChunk]) {})
	resp.Body = stream.WithChannel[protocol.BodyChunk](1, func(ctx context.Context, send stream.Sender[protocol.BodyChunk]) {
		send.Emit(ctx, protocol.BodyChunk{Final: true, Err: fmt.Errorf("%s", msg)})
	})
	resp.Trailers = stream.WithChannel[protocol.HeaderChunk](1, func(context.Context, stream.Sender[protocol.HeaderChunk]) {})
	return resp
}

func cutStatusLine(line string) (proto string, status int, ok bool) {
	var rest string
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			proto, rest = line[:i], line[i+1:]
			break
		}
	}
	if proto == "" {
		return "", 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] == ' ' {
			rest = rest[:i]
			break
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return "", 0, false
	}
	return proto, n, true
}
