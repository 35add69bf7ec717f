// Package request implements the typestate builder core: a request starts
// life with no body, and a body-setting method (Bytes/Text/JSON/Form/
// Multipart, or JSONPath) returns a distinct next-stage type so a caller
// cannot accidentally set a body twice or mix a JSONPath expression with a
// raw body. Transitions are one-way, generalizing the teacher's single-shot
// NewRequest constructor (fetch/request.go) into a staged builder per the
// request-builder core's typestate diagram.
package request

import (
	"net/url"
	"time"

	"github.com/ski-ext/streamhttp/jsonpath"
	"github.com/ski-ext/streamhttp/multipart"
	"github.com/ski-ext/streamhttp/protocol"
)

// ChunkHandler is the type of the chunk-handler hook. Build does not carry
// the hook into protocol.Request, so a plain Client.Execute never calls it;
// only Client.ExecuteJSONPathStreaming does, once per JSONPath match
// (re-marshaled to JSON) followed by one final empty chunk. Raw body chunks
// are not passed to it.
type ChunkHandler func(protocol.BodyChunk)

// common carries the fields every builder stage shares: timeout, retry
// attempts, a debug flag, and the optional chunk-handler hook. Each stage
// embeds it rather than duplicating the fields and their setters.
type common struct {
	method        protocol.Method
	url           *url.URL
	header        map[string][]string
	timeout       time.Duration
	retryAttempts int
	debug         bool
	onChunk       ChunkHandler
}

func (c *common) setHeader(name, value string) {
	if c.header == nil {
		c.header = make(map[string][]string)
	}
	c.header[name] = append(c.header[name], value)
}

// RequestBuilder is the entry stage: BodyNotSet. It carries method, URL,
// and headers, and exposes one method per way of setting a body plus one
// that transitions into streaming JSONPath extraction.
type RequestBuilder struct {
	common
}

// New starts a builder for method and rawURL. An invalid URL is reported
// immediately: New returns url.Parse's error and no builder.
func New(method protocol.Method, rawURL string) (*RequestBuilder, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	b := &RequestBuilder{}
	b.method = method
	b.url = parsed
	return b, nil
}

// Header adds a header value and returns the same builder for chaining.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.setHeader(name, value)
	return b
}

// Timeout sets the per-request deadline.
func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.timeout = d
	return b
}

// RetryAttempts sets how many additional attempts a failed exchange gets.
func (b *RequestBuilder) RetryAttempts(n int) *RequestBuilder {
	b.retryAttempts = n
	return b
}

// Debug records a debug flag, readable through DebugEnabled. Build does
// not carry it into protocol.Request, so it does not change the exchange.
func (b *RequestBuilder) Debug(on bool) *RequestBuilder {
	b.debug = on
	return b
}

// OnChunk installs a chunk-handler hook, carried into whichever next-stage
// builder a body-setting method returns.
func (b *RequestBuilder) OnChunk(h ChunkHandler) *RequestBuilder {
	b.onChunk = h
	return b
}

// Bytes transitions to BodySet with a raw byte-slice body.
func (b *RequestBuilder) Bytes(data []byte) *BodySetBuilder {
	next := b.bodySetFrom()
	next.body = protocol.Body{Kind: protocol.BodyBytes, Bytes: data}
	return next
}

// Text transitions to BodySet with a plain-text body.
func (b *RequestBuilder) Text(s string) *BodySetBuilder {
	next := b.bodySetFrom()
	next.body = protocol.Body{Kind: protocol.BodyText, Text: s}
	return next
}

// JSON transitions to BodySet with a pre-encoded JSON body.
func (b *RequestBuilder) JSON(raw []byte) *BodySetBuilder {
	next := b.bodySetFrom()
	next.body = protocol.Body{Kind: protocol.BodyJSON, JSON: raw}
	return next
}

// Form transitions to BodySet with a URL-encoded form body.
func (b *RequestBuilder) Form(fields map[string]string) *BodySetBuilder {
	next := b.bodySetFrom()
	next.body = protocol.Body{Kind: protocol.BodyForm, Form: fields}
	return next
}

// Multipart transitions to BodySet with a multipart/form-data body.
func (b *RequestBuilder) Multipart(fields []multipart.Field) *BodySetBuilder {
	next := b.bodySetFrom()
	next.body = protocol.Body{Kind: protocol.BodyMultipart, Multipart: fields}
	return next
}

func (b *RequestBuilder) bodySetFrom() *BodySetBuilder {
	return &BodySetBuilder{common: b.common}
}

// JSONPathStreaming transitions to the JsonPathStreaming stage, compiling
// expr immediately so a malformed expression is reported at call time
// rather than surfacing later as a stream error.
func (b *RequestBuilder) JSONPathStreaming(expr string) (*JSONPathStreamingBuilder, error) {
	compiled, err := jsonpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &JSONPathStreamingBuilder{common: b.common, expr: compiled}, nil
}

// OnChunkHandler exposes the installed chunk-handler hook, or nil.
func (b *RequestBuilder) OnChunkHandler() ChunkHandler { return b.onChunk }

// DebugEnabled reports whether Debug(true) was called.
func (b *RequestBuilder) DebugEnabled() bool { return b.debug }

// Build finalizes a no-body request (e.g. GET/HEAD/DELETE with no payload).
func (b *RequestBuilder) Build() *protocol.Request {
	return &protocol.Request{
		Method:        b.method,
		URL:           b.url,
		Header:        b.header,
		Timeout:       b.timeout,
		RetryAttempts: b.retryAttempts,
	}
}

// BodySetBuilder is the BodySet stage: a body has been attached and no
// further body-setting method is reachable from it.
type BodySetBuilder struct {
	common
	body protocol.Body
}

// Header adds a header value and returns the same builder for chaining.
func (b *BodySetBuilder) Header(name, value string) *BodySetBuilder {
	b.setHeader(name, value)
	return b
}

// Timeout sets the per-request deadline.
func (b *BodySetBuilder) Timeout(d time.Duration) *BodySetBuilder {
	b.timeout = d
	return b
}

// RetryAttempts sets how many additional attempts a failed exchange gets.
func (b *BodySetBuilder) RetryAttempts(n int) *BodySetBuilder {
	b.retryAttempts = n
	return b
}

// Debug records a debug flag, readable through DebugEnabled. Build does
// not carry it into protocol.Request, so it does not change the exchange.
func (b *BodySetBuilder) Debug(on bool) *BodySetBuilder {
	b.debug = on
	return b
}

// OnChunk installs a chunk-handler hook.
func (b *BodySetBuilder) OnChunk(h ChunkHandler) *BodySetBuilder {
	b.onChunk = h
	return b
}

// OnChunkHandler exposes the installed chunk-handler hook, or nil.
func (b *BodySetBuilder) OnChunkHandler() ChunkHandler { return b.onChunk }

// DebugEnabled reports whether Debug(true) was called.
func (b *BodySetBuilder) DebugEnabled() bool { return b.debug }

// Build finalizes the request with its attached body.
func (b *BodySetBuilder) Build() *protocol.Request {
	return &protocol.Request{
		Method:        b.method,
		URL:           b.url,
		Header:        b.header,
		Body:          b.body,
		Timeout:       b.timeout,
		RetryAttempts: b.retryAttempts,
	}
}

// JSONPathStreamingBuilder is the JsonPathStreaming stage: it carries a
// compiled expression instead of a body, and Build returns both the
// request and the expression so the client facade can wire a streaming
// evaluator over the response body.
type JSONPathStreamingBuilder struct {
	common
	expr *jsonpath.Expression
}

// Header adds a header value and returns the same builder for chaining.
func (b *JSONPathStreamingBuilder) Header(name, value string) *JSONPathStreamingBuilder {
	b.setHeader(name, value)
	return b
}

// Timeout sets the per-request deadline.
func (b *JSONPathStreamingBuilder) Timeout(d time.Duration) *JSONPathStreamingBuilder {
	b.timeout = d
	return b
}

// RetryAttempts sets how many additional attempts a failed exchange gets.
func (b *JSONPathStreamingBuilder) RetryAttempts(n int) *JSONPathStreamingBuilder {
	b.retryAttempts = n
	return b
}

// Debug records a debug flag, readable through DebugEnabled. Build does
// not carry it into protocol.Request, so it does not change the exchange.
func (b *JSONPathStreamingBuilder) Debug(on bool) *JSONPathStreamingBuilder {
	b.debug = on
	return b
}

// OnChunk installs a chunk-handler hook.
func (b *JSONPathStreamingBuilder) OnChunk(h ChunkHandler) *JSONPathStreamingBuilder {
	b.onChunk = h
	return b
}

// Expression returns the compiled JSONPath expression this builder carries.
func (b *JSONPathStreamingBuilder) Expression() *jsonpath.Expression { return b.expr }

// OnChunkHandler exposes the installed chunk-handler hook, or nil.
func (b *JSONPathStreamingBuilder) OnChunkHandler() ChunkHandler { return b.onChunk }

// DebugEnabled reports whether Debug(true) was called.
func (b *JSONPathStreamingBuilder) DebugEnabled() bool { return b.debug }

// Build finalizes the request. The request itself carries no body; the
// compiled expression travels alongside via Expression() for the caller
// driving the streaming evaluator.
func (b *JSONPathStreamingBuilder) Build() *protocol.Request {
	return &protocol.Request{
		Method:        b.method,
		URL:           b.url,
		Header:        b.header,
		Timeout:       b.timeout,
		RetryAttempts: b.retryAttempts,
	}
}
