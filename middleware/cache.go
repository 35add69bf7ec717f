package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ski-ext/streamhttp/cache"
	"github.com/ski-ext/streamhttp/protocol"
	"github.com/ski-ext/streamhttp/stream"
)

// CacheMiddleware wraps a Strategy with the RFC 2616/Cache-Control
// freshness logic in the cache package: a fresh hit short-circuits the
// wrapped strategy entirely, a stale hit adds conditional revalidation
// headers, and a cacheable miss tees the response body into the cache
// while still streaming it to the caller.
type CacheMiddleware struct {
	cache *cache.Cache
}

// NewCache builds a CacheMiddleware around an existing cache.
func NewCache(c *cache.Cache) *CacheMiddleware {
	return &CacheMiddleware{cache: c}
}

func (m *CacheMiddleware) Wrap(next protocol.Strategy) protocol.Strategy {
	return &cachingStrategy{next: next, cache: m.cache}
}

type cachingStrategy struct {
	next  protocol.Strategy
	cache *cache.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

func (s *cachingStrategy) ProtocolName() string        { return s.next.ProtocolName() }
func (s *cachingStrategy) SupportsPush() bool          { return s.next.SupportsPush() }
func (s *cachingStrategy) MaxConcurrentStreams() uint32 { return s.next.MaxConcurrentStreams() }

// Hits and Misses expose this middleware's own counters, summed into the
// client facade's cache_hits/cache_misses telemetry.
func (s *cachingStrategy) Hits() uint64   { return s.hits.Load() }
func (s *cachingStrategy) Misses() uint64 { return s.misses.Load() }

func (s *cachingStrategy) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.Method != protocol.MethodGet && req.Method != protocol.MethodHead {
		return s.next.Execute(ctx, req)
	}

	key := cache.Key(string(req.Method), req.URL.String())
	reqHeader := http.Header(req.Header)

	if entry, ok := s.cache.Get(key); ok && cache.VaryMatches(entry, reqHeader) {
		freshness := cache.Freshness(entry.Header, reqHeader, entry.StoredAt)
		if cache.IsFresh(freshness) {
			s.hits.Add(1)
			return responseFromEntry(entry), nil
		}
		if cache.IsStale(freshness) {
			revalidated := cloneRequest(req)
			for name, vals := range cache.ConditionalHeaders(entry) {
				for _, v := range vals {
					revalidated.Header[name] = append(revalidated.Header[name], v)
				}
			}
			resp, err := s.next.Execute(ctx, revalidated)
			if err == nil && resp.Status == http.StatusNotModified {
				s.hits.Add(1)
				entry.StoredAt = time.Now()
				s.cache.Put(entry)
				return responseFromEntry(entry), nil
			}
			s.misses.Add(1)
			if err != nil {
				return nil, err
			}
			return s.teeForCache(key, req, resp), nil
		}
	}

	s.misses.Add(1)
	resp, err := s.next.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.teeForCache(key, req, resp), nil
}

func cloneRequest(req *protocol.Request) *protocol.Request {
	clone := *req
	clone.Header = make(map[string][]string, len(req.Header))
	for k, v := range req.Header {
		clone.Header[k] = append([]string(nil), v...)
	}
	return &clone
}

// teeForCache drains resp's header and body streams into fresh streams the
// caller consumes, while buffering the same data to decide admission into
// the cache once the body is fully read.
func (s *cachingStrategy) teeForCache(key string, req *protocol.Request, resp *protocol.Response) *protocol.Response {
	headerChunks := resp.Headers.Collect(context.Background())
	respHeader := make(http.Header)
	for _, h := range headerChunks {
		if h.IsError() {
			continue
		}
		respHeader[h.Name] = append(respHeader[h.Name], h.Value)
	}

	out := &protocol.Response{
		Status:       resp.Status,
		ProtoVersion: resp.ProtoVersion,
		StreamID:     resp.StreamID,
		Trailers:     resp.Trailers,
	}
	out.Headers = stream.WithChannel[protocol.HeaderChunk](0, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {
		for _, h := range headerChunks {
			send.Emit(ctx, h)
		}
	})

	out.Body = stream.WithChannel[protocol.BodyChunk](0, func(ctx context.Context, send stream.Sender[protocol.BodyChunk]) {
		var buf []byte
		admissible := true
		for {
			c, ok := resp.Body.Next(ctx)
			if !ok {
				return
			}
			if c.IsError() {
				admissible = false
			}
			if admissible && len(buf)+len(c.Data) <= cache.DefaultMaxBodyBytes {
				buf = append(buf, c.Data...)
			} else {
				admissible = false
			}
			if c.Final {
				if admissible && s.cache.ShouldCache(string(req.Method), out.Status, http.Header(req.Header), respHeader, len(buf)) {
					stored := respHeader.Clone()
					for name, vals := range cache.VaryHeaders(respHeader, http.Header(req.Header)) {
						stored[name] = vals
					}
					s.cache.Put(&cache.Entry{
						Key:      key,
						Status:   out.Status,
						Header:   stored,
						Body:     buf,
						StoredAt: time.Now(),
					})
				}
				// Forward the final chunk only once the entry is stored, so a
				// consumer that has drained the body finds it in the cache.
				send.Emit(ctx, c)
				return
			}
			send.Emit(ctx, c)
		}
	})

	return out
}

// responseFromEntry replays a cached entry as a Response with its body
// delivered as a single final chunk.
func responseFromEntry(entry *cache.Entry) *protocol.Response {
	resp := &protocol.Response{Status: entry.Status, ProtoVersion: "cache"}
	resp.Headers = stream.WithChannel[protocol.HeaderChunk](0, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {
		for name, vals := range entry.Header {
			for _, v := range vals {
				send.Emit(ctx, protocol.HeaderChunk{Name: name, Value: v})
			}
		}
	})
	resp.Body = stream.WithChannel[protocol.BodyChunk](0, func(ctx context.Context, send stream.Sender[protocol.BodyChunk]) {
		send.Emit(ctx, protocol.BodyChunk{Data: entry.Body, Final: true})
	})
	resp.Trailers = stream.WithChannel[protocol.HeaderChunk](0, func(ctx context.Context, send stream.Sender[protocol.HeaderChunk]) {})
	return resp
}
