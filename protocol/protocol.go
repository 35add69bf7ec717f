// Package protocol defines the data model shared by the H2 and H3
// strategies and the response canonicalizer: requests, canonical
// responses, the tagged raw-chunk stream a strategy produces, and the
// connection manager both strategies register their connections with.
package protocol

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ski-ext/streamhttp/multipart"
	"github.com/ski-ext/streamhttp/stream"
)

// Method is one of the common HTTP verbs a Request carries.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
)

// BodyKind tags which variant of Request.Body is populated.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyBytes
	BodyText
	BodyJSON
	BodyForm
	BodyMultipart
)

// Body is the sum-type request body carrier. Exactly the fields matching
// Kind are meaningful.
type Body struct {
	Kind      BodyKind
	Bytes     []byte
	Text      string
	JSON      []byte
	Form      map[string]string
	Multipart []multipart.Field
}

// Request carries everything a strategy needs to drive one HTTP exchange.
// It is frozen at Execute time: a strategy must not mutate it.
type Request struct {
	Method        Method
	URL           *url.URL
	Header        map[string][]string
	Body          Body
	Timeout       time.Duration
	RetryAttempts int
}

// HeaderChunk is one name/value pair of a response's header or trailer
// substream.
type HeaderChunk struct {
	Name  string
	Value string
	Err   error
}

func (h HeaderChunk) IsError() bool       { return h.Err != nil }
func (h HeaderChunk) ErrorMessage() string {
	if h.Err == nil {
		return ""
	}
	return h.Err.Error()
}

// BodyChunk is one fragment of a response body.
type BodyChunk struct {
	Data  []byte
	Offset int64
	Final bool
	Err   error
}

func (b BodyChunk) IsError() bool { return b.Err != nil }
func (b BodyChunk) ErrorMessage() string {
	if b.Err == nil {
		return ""
	}
	return b.Err.Error()
}

// Response is the canonical shape every strategy produces: three
// independent bounded streams plus out-of-band status metadata.
type Response struct {
	Status        int
	ProtoVersion  string
	StreamID      int64
	Headers       *stream.Stream[HeaderChunk]
	Body          *stream.Stream[BodyChunk]
	Trailers      *stream.Stream[HeaderChunk]

	// RequestHeaderBytes is the size of this exchange's request header
	// block as encoded by the wire codec (wire/hpack for H2, wire/qpack
	// for H3), reported here so the client facade can fold it into its
	// bytes-sent telemetry alongside the body size.
	RequestHeaderBytes int
}

// RawKind tags the variant of a RawChunk emitted by a strategy before
// canonicalization.
type RawKind int

const (
	RawHeaders RawKind = iota
	RawBody
	RawTrailers
	RawEnd
	RawError
)

// RawChunk is the tagged union a strategy's producer goroutine emits; the
// canonicalizer demultiplexes a stream of these into a Response.
type RawChunk struct {
	Kind    RawKind
	Status  int
	Proto   string
	Headers map[string][]string
	Data    []byte
	Final   bool
	Message string
}

func (c RawChunk) IsError() bool       { return c.Kind == RawError }
func (c RawChunk) ErrorMessage() string { return c.Message }

// Strategy is the small interface both the H2 and H3 protocol engines
// implement; the client facade selects exactly one of two concrete values
// at construction time (or per-request override), never by reflection.
type Strategy interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
	ProtocolName() string
	SupportsPush() bool
	MaxConcurrentStreams() uint32
}

// ConnKind tags what a Connection wraps.
type ConnKind int

const (
	ConnH2 ConnKind = iota
	ConnH3
	ConnError
)

// Connection is one entry the connection manager tracks: its kind,
// identity, and the liveness bookkeeping the client facade uses to decide
// when an idle connection may be swept.
type Connection struct {
	ID       int64
	Kind     ConnKind
	Message  string
	lastUsed atomic.Int64 // unix nanos
	inFlight atomic.Int32
}

// Touch marks the connection as used right now.
func (c *Connection) Touch() { c.lastUsed.Store(time.Now().UnixNano()) }

// LastUsed reports the last Touch time.
func (c *Connection) LastUsed() time.Time { return time.Unix(0, c.lastUsed.Load()) }

// BeginStream increments the in-flight stream counter and touches the
// connection; EndStream decrements it.
func (c *Connection) BeginStream() { c.inFlight.Add(1); c.Touch() }
func (c *Connection) EndStream()   { c.inFlight.Add(-1) }
func (c *Connection) InFlight() int32 { return c.inFlight.Load() }

// ConnectionManager owns the client's live connections, keyed by a string
// identity (typically scheme://host:port). Connection IDs are strictly
// monotonic within one manager instance.
type ConnectionManager struct {
	mu      sync.RWMutex
	byKey   map[string]*Connection
	nextID  atomic.Int64
}

// NewConnectionManager returns an empty manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byKey: make(map[string]*Connection)}
}

// Get returns the connection registered under key, if any.
func (m *ConnectionManager) Get(key string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byKey[key]
	return c, ok
}

// GetOrCreate returns the existing connection for key, or registers a new
// one of the given kind with the next monotonic ID.
func (m *ConnectionManager) GetOrCreate(key string, kind ConnKind) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byKey[key]; ok {
		return c
	}
	c := &Connection{ID: m.nextID.Add(1), Kind: kind}
	c.Touch()
	m.byKey[key] = c
	return c
}

// Remove drops the connection registered under key.
func (m *ConnectionManager) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, key)
}

// SweepIdle removes every connection with zero in-flight streams whose
// last use is older than idleTimeout, returning the keys it removed.
func (m *ConnectionManager) SweepIdle(idleTimeout time.Duration) []string {
	cutoff := time.Now().Add(-idleTimeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []string
	for k, c := range m.byKey {
		if c.InFlight() == 0 && c.LastUsed().Before(cutoff) {
			delete(m.byKey, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Len reports how many connections are currently tracked.
func (m *ConnectionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}
