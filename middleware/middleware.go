// Package middleware defines the seam that lets cross-cutting concerns —
// caching, retry-policy enforcement, telemetry counters — wrap the core
// protocol.Strategy interface instead of being baked into it. This
// generalizes the teacher's CacheTransport (fetch/cache.go), which wraps
// an http.RoundTripper the same way; here the wrapped type is
// protocol.Strategy, so the same pipeline shape works for both the H2 and
// H3 engines without duplicating middleware per protocol.
package middleware

import "github.com/ski-ext/streamhttp/protocol"

// Middleware wraps a Strategy with additional behavior, returning a new
// Strategy that the caller uses exactly like the wrapped one.
type Middleware interface {
	Wrap(next protocol.Strategy) protocol.Strategy
}

// Chain applies each middleware in order, innermost first: Chain(s, a, b)
// executes a request through b(a(s)), so the first middleware listed runs
// first on the response and last on the request (the fixed pipeline order
// — cache, retry-policy enforcement, telemetry — is established by the
// order callers pass to Chain).
func Chain(strategy protocol.Strategy, mws ...Middleware) protocol.Strategy {
	for _, mw := range mws {
		strategy = mw.Wrap(strategy)
	}
	return strategy
}
