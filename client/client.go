// Package client is the facade applications call into: it adorns a
// request's headers for compression negotiation, selects the H2 or H3
// strategy by configuration and URL scheme, drives the exchange through
// any configured middleware, and updates per-client counters. Presets
// (AIOptimized, StreamingOptimized, BatchOptimized, LowLatency) bundle
// the underlying ClientOption knobs for common traffic shapes.
package client

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ski-ext/streamhttp/errs"
	"github.com/ski-ext/streamhttp/jsonpath"
	"github.com/ski-ext/streamhttp/middleware"
	"github.com/ski-ext/streamhttp/protocol"
	"github.com/ski-ext/streamhttp/protocol/h2"
	"github.com/ski-ext/streamhttp/protocol/h3"
	"github.com/ski-ext/streamhttp/request"
	"github.com/ski-ext/streamhttp/stream"
)

// Counters holds the per-client telemetry readout spec §4.8 names. All
// fields use relaxed atomics; ordering across unrelated requests is not
// observable, matching the concurrency model's counter contract.
type Counters struct {
	TotalRequests      atomic.Uint64
	SuccessfulRequests atomic.Uint64
	FailedRequests     atomic.Uint64
	BytesSent          atomic.Uint64
	BytesReceived      atomic.Uint64
	CacheHits          atomic.Uint64
	CacheMisses        atomic.Uint64

	responseNanos atomic.Int64
	responseCount atomic.Int64
}

// AvgResponseTimeMS reports the mean response latency across every
// completed request, in milliseconds.
func (c *Counters) AvgResponseTimeMS() float64 {
	n := c.responseCount.Load()
	if n == 0 {
		return 0
	}
	return float64(c.responseNanos.Load()) / float64(n) / float64(time.Millisecond)
}

func (c *Counters) recordLatency(d time.Duration) {
	c.responseNanos.Add(int64(d))
	c.responseCount.Add(1)
}

type cacheStatter interface {
	Hits() uint64
	Misses() uint64
}

// Client is the execution facade over the protocol strategies.
type Client struct {
	cfg        Config
	h2         *h2.Strategy
	h3         *h3.Strategy
	h2Strategy protocol.Strategy
	h3Strategy protocol.Strategy
	cacheStats []cacheStatter

	Counters Counters

	stopSweep chan struct{}
}

// New builds a Client from opts applied in order over DefaultConfig.
func New(opts ...ClientOption) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.H2.DialTimeout == 0 {
		cfg.H2.DialTimeout = cfg.ConnectTimeout
	}
	if cfg.H3.HandshakeTimeout == 0 {
		cfg.H3.HandshakeTimeout = cfg.ConnectTimeout
	}

	c := &Client{cfg: cfg}
	c.h2 = h2.New(cfg.H2)
	c.h3 = h3.New(cfg.H3)
	c.h2Strategy = protocol.Strategy(c.h2)
	c.h3Strategy = protocol.Strategy(c.h3)

	if cfg.Cache != nil {
		mw := middleware.NewCache(cfg.Cache)
		for _, wrapped := range []*protocol.Strategy{&c.h2Strategy, &c.h3Strategy} {
			w := mw.Wrap(*wrapped)
			*wrapped = w
			if cs, ok := w.(cacheStatter); ok {
				c.cacheStats = append(c.cacheStats, cs)
			}
		}
	}

	if cfg.ConnectionReuse != ReuseOff && cfg.IdleSweepInterval > 0 {
		c.stopSweep = make(chan struct{})
		go c.sweepLoop()
	}

	return c
}

// Close stops the idle-connection sweeper and releases the H3 transport.
func (c *Client) Close() error {
	if c.stopSweep != nil {
		close(c.stopSweep)
	}
	return c.h3.Close()
}

func (c *Client) sweepLoop() {
	ticker := time.NewTicker(c.cfg.IdleSweepInterval)
	defer ticker.Stop()
	idleTimeout := 2 * c.cfg.IdleSweepInterval
	for {
		select {
		case <-ticker.C:
			c.h2.Connections().SweepIdle(idleTimeout)
			c.h3.Connections().SweepIdle(idleTimeout)
		case <-c.stopSweep:
			return
		}
	}
}

// selectStrategy implements spec §4.8 step 2: choose by configuration and
// URL scheme. "h3://" or "quic://" forces HTTP/3; otherwise the
// configured preference decides, defaulting to H2. The returned Strategy
// is whatever middleware chain was wired around it in New.
func (c *Client) selectStrategy(req *protocol.Request) protocol.Strategy {
	switch req.URL.Scheme {
	case "h3", "quic":
		return c.h3Strategy
	}
	switch c.cfg.PreferredProtocol {
	case ProtocolH3:
		return c.h3Strategy
	default:
		return c.h2Strategy
	}
}

// adornCompression implements spec §4.8 step 1: set Accept-Encoding per
// configuration unless the caller already set one. Compression itself
// happens at the protocol boundary (the H2/H3 strategies), never here.
func (c *Client) adornCompression(req *protocol.Request) {
	if !c.cfg.RequestCompression {
		return
	}
	if req.Header == nil {
		req.Header = make(map[string][]string)
	}
	if len(req.Header["Accept-Encoding"]) > 0 {
		return
	}
	var tokens []string
	if c.cfg.GzipEnabled {
		tokens = append(tokens, "gzip")
	}
	if c.cfg.DeflateEnabled {
		tokens = append(tokens, "deflate")
	}
	if c.cfg.BrotliEnabled {
		tokens = append(tokens, "br")
	}
	if len(tokens) == 0 {
		return
	}
	joined := tokens[0]
	for _, t := range tokens[1:] {
		joined += ", " + t
	}
	req.Header["Accept-Encoding"] = []string{joined}
}

func requestSize(req *protocol.Request) int {
	switch req.Body.Kind {
	case protocol.BodyBytes:
		return len(req.Body.Bytes)
	case protocol.BodyText:
		return len(req.Body.Text)
	case protocol.BodyJSON:
		return len(req.Body.JSON)
	default:
		return 0
	}
}

// Execute runs the full facade pipeline: header adornment, strategy
// selection, the exchange itself, and counter updates. The returned
// Response's Body stream is wrapped so bytes-received is counted as the
// caller actually drains it.
func (c *Client) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if c.cfg.HTTPSOnly && req.URL.Scheme != "https" && req.URL.Scheme != "h3" && req.URL.Scheme != "quic" {
		return nil, errs.New(errs.KindSecurity, "client.Execute", "https_only forbids scheme "+req.URL.Scheme)
	}

	c.Counters.TotalRequests.Add(1)
	c.adornCompression(req)

	if len(c.cfg.ProxyURLs) > 0 {
		ctx = protocol.WithRoundRobinProxy(ctx, c.cfg.ProxyURLs...)
	}

	strategy := c.selectStrategy(req)

	start := time.Now()
	resp, err := strategy.Execute(ctx, req)
	c.Counters.recordLatency(time.Since(start))

	if err != nil {
		c.Counters.FailedRequests.Add(1)
		return nil, err
	}
	c.Counters.SuccessfulRequests.Add(1)
	c.Counters.BytesSent.Add(uint64(requestSize(req) + resp.RequestHeaderBytes))

	var hits, misses uint64
	for _, cs := range c.cacheStats {
		hits += cs.Hits()
		misses += cs.Misses()
	}
	c.Counters.CacheHits.Store(hits)
	c.Counters.CacheMisses.Store(misses)

	resp.Body = c.countingBody(resp.Body)
	return resp, nil
}

// ExecuteJSONPathStreaming runs b's request exactly like Execute. If b has
// a chunk handler installed, the response body is then drained internally
// by a background goroutine that feeds it incrementally through a
// JSONPath streaming evaluator: every matched subtree is re-marshaled to
// JSON and delivered through the handler as it closes, so this facade never
// buffers the whole document; the evaluator underneath buffers it only for
// expressions with recursive descent or a union. In that case the caller
// must not also drain the returned Response's Body — this method is
// already its only consumer. With no chunk handler installed, the body is
// left untouched for the caller to drain directly, same as Execute.
func (c *Client) ExecuteJSONPathStreaming(ctx context.Context, b *request.JSONPathStreamingBuilder) (*protocol.Response, error) {
	resp, err := c.Execute(ctx, b.Build())
	if err != nil {
		return nil, err
	}

	handler := b.OnChunkHandler()
	if handler == nil {
		return resp, nil
	}

	ev := jsonpath.NewStreamingEvaluator(b.Expression(), jsonpath.JSONParser[any]())
	go func() {
		var offset int64
		emit := func(matches []jsonpath.Match[any]) {
			for _, m := range matches {
				if m.IsError() {
					handler(protocol.BodyChunk{Err: m.Err})
					continue
				}
				raw, merr := json.Marshal(m.Value)
				if merr != nil {
					handler(protocol.BodyChunk{Err: merr})
					continue
				}
				handler(protocol.BodyChunk{Data: raw, Offset: offset})
				offset += int64(len(raw))
			}
		}

		for {
			chunk, ok := resp.Body.Next(ctx)
			if !ok {
				break
			}
			if chunk.IsError() {
				ev.Cancel()
				handler(chunk)
				return
			}
			matches, _ := ev.Feed(chunk.Data)
			emit(matches)
			if chunk.Final {
				break
			}
		}
		final, _ := ev.Finish()
		emit(final)
		handler(protocol.BodyChunk{Final: true, Offset: offset})
	}()

	return resp, nil
}

// countingBody wraps body in a pass-through stream that adds every
// chunk's length to BytesReceived as the caller drains it.
func (c *Client) countingBody(body *stream.Stream[protocol.BodyChunk]) *stream.Stream[protocol.BodyChunk] {
	return stream.WithChannel[protocol.BodyChunk](0, func(ctx context.Context, send stream.Sender[protocol.BodyChunk]) {
		for {
			chunk, ok := body.Next(ctx)
			if !ok {
				return
			}
			c.Counters.BytesReceived.Add(uint64(len(chunk.Data)))
			send.Emit(ctx, chunk)
			if chunk.Final {
				return
			}
		}
	})
}
