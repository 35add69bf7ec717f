package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
)

// roundRobinProxy cycles through a fixed list of proxy URLs, adapted from
// the teacher's fetch.roundRobinProxy: a context-carried selector instead
// of an http.RoundTripper field, so both the H2 and H3 strategies can
// consult it from their dial hooks without depending on net/http.
type roundRobinProxy struct {
	urls  []*url.URL
	index atomic.Uint32
}

func (r *roundRobinProxy) next() *url.URL {
	i := r.index.Add(1) - 1
	return r.urls[i%uint32(len(r.urls))]
}

type proxyContextKey struct{}

// WithRoundRobinProxy attaches a round-robin proxy selector to ctx. Any
// URL that fails to parse is logged and dropped from rotation; if none
// parse, the context is returned unmodified (no proxying).
func WithRoundRobinProxy(ctx context.Context, proxyURLs ...string) context.Context {
	if len(proxyURLs) == 0 {
		return ctx
	}
	parsed := make([]*url.URL, 0, len(proxyURLs))
	for _, raw := range proxyURLs {
		u, err := url.Parse(raw)
		if err != nil {
			slog.Error("proxy url parse error", "url", raw, "error", err)
			continue
		}
		parsed = append(parsed, u)
	}
	if len(parsed) == 0 {
		return ctx
	}
	return context.WithValue(ctx, proxyContextKey{}, &roundRobinProxy{urls: parsed})
}

// ProxyFromContext returns the next proxy URL in rotation for ctx, or nil
// if ctx carries no proxy selector.
func ProxyFromContext(ctx context.Context) (*url.URL, error) {
	v := ctx.Value(proxyContextKey{})
	if v == nil {
		return nil, nil
	}
	rr, ok := v.(*roundRobinProxy)
	if !ok {
		return nil, fmt.Errorf("protocol: unexpected proxy context value type %T", v)
	}
	return rr.next(), nil
}
