// Package cache implements the client's owned in-memory HTTP response
// cache: RFC 2616/Cache-Control freshness evaluation, conditional
// revalidation header synthesis, and LRU plus byte-budget eviction.
//
// The freshness algorithm (getFreshness, canStore, canStaleOnError, the
// Cache-Control grammar in parseCacheControl) is adapted from the
// teacher's fetch.CacheTransport — but where that type wrapped an
// external Cache interface as an http.RoundTripper pass-through, this
// package owns its entries directly (a concurrent map plus an LRU list)
// so it can enforce a byte budget itself rather than delegate storage.
package cache

import (
	"container/list"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	freshnessStale = iota
	freshnessFresh
	freshnessTransparent
)

// DefaultMaxBodyBytes bounds how large a single response body may be
// before admission is refused; larger bodies are still forwarded to the
// caller, just never cached (spec: "a 10 MiB default body-size cap aborts
// caching but not forwarding").
const DefaultMaxBodyBytes = 10 << 20

// DefaultMaxBytes is the overall cache byte budget before LRU eviction
// begins reclaiming space.
const DefaultMaxBytes = 64 << 20

// Entry is one cached response.
type Entry struct {
	Key        string
	Status     int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
	DateHeader time.Time
}

func (e *Entry) size() int64 {
	sz := int64(len(e.Body))
	for k, vs := range e.Header {
		sz += int64(len(k))
		for _, v := range vs {
			sz += int64(len(v))
		}
	}
	return sz
}

// Cache is a concurrent, LRU-evicted, byte-budgeted HTTP response cache.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*list.Element // key -> lru element wrapping *Entry
	lru         *list.List
	maxBytes    int64
	usedBytes   int64
	maxBodySize int64

	hits   uint64
	misses uint64
}

// New returns an empty Cache. maxBytes/maxBodySize <= 0 use the package
// defaults.
func New(maxBytes, maxBodySize int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodyBytes
	}
	return &Cache{
		entries:     make(map[string]*list.Element),
		lru:         list.New(),
		maxBytes:    maxBytes,
		maxBodySize: maxBodySize,
	}
}

// Key derives the cache key for a request: method + URL, except GET
// requests key on URL alone so HEAD/GET don't collide needlessly in the
// common read-heavy case.
func Key(method, url string) string {
	if method == "" || method == http.MethodGet {
		return url
	}
	return method + " " + url
}

// Get returns the cached entry for key, or (nil, false) on a miss. A hit
// moves the entry to the front of the LRU list.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	return el.Value.(*Entry), true
}

// ShouldCache is the admission predicate: only successful, not
// explicitly uncacheable, size-bounded responses to cacheable methods are
// stored.
func (c *Cache) ShouldCache(method string, status int, reqHeader, respHeader http.Header, bodyLen int) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	if reqHeader.Get("Range") != "" {
		return false
	}
	if status != http.StatusOK && status != http.StatusNotModified {
		return false
	}
	if int64(bodyLen) > c.maxBodySize {
		return false
	}
	return canStore(parseCacheControl(reqHeader), parseCacheControl(respHeader))
}

// Put stores entry, evicting least-recently-used entries if the byte
// budget is exceeded.
func (c *Cache) Put(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[entry.Key]; ok {
		c.usedBytes -= el.Value.(*Entry).size()
		el.Value = entry
		c.lru.MoveToFront(el)
	} else {
		el := c.lru.PushFront(entry)
		c.entries[entry.Key] = el
	}
	c.usedBytes += entry.size()

	for c.usedBytes > c.maxBytes {
		back := c.lru.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*Entry)
		c.usedBytes -= evicted.size()
		delete(c.entries, evicted.Key)
		c.lru.Remove(back)
	}
}

// Delete invalidates key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return
	}
	c.usedBytes -= el.Value.(*Entry).size()
	delete(c.entries, key)
	c.lru.Remove(el)
}

// Stats reports cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Freshness reports whether a cached entry can be returned as-is (fresh),
// needs revalidation (stale), or must not be used at all (transparent),
// following the teacher's getFreshness algorithm.
func Freshness(respHeader, reqHeader http.Header, storedAt time.Time) int {
	respCC := parseCacheControl(respHeader)
	reqCC := parseCacheControl(reqHeader)
	if _, ok := reqCC["no-cache"]; ok {
		return freshnessTransparent
	}
	if _, ok := respCC["no-cache"]; ok {
		return freshnessStale
	}
	if _, ok := reqCC["only-if-cached"]; ok {
		return freshnessFresh
	}

	date := storedAt
	if dh := respHeader.Get("Date"); dh != "" {
		if parsed, err := time.Parse(time.RFC1123, dh); err == nil {
			date = parsed
		}
	}
	currentAge := time.Since(date)

	var lifetime time.Duration
	if maxAge, ok := respCC["max-age"]; ok {
		if d, err := time.ParseDuration(maxAge + "s"); err == nil {
			lifetime = d
		}
	} else if expiresHeader := respHeader.Get("Expires"); expiresHeader != "" {
		if expires, err := time.Parse(time.RFC1123, expiresHeader); err == nil {
			lifetime = expires.Sub(date)
		}
	}

	if maxAge, ok := reqCC["max-age"]; ok {
		if d, err := time.ParseDuration(maxAge + "s"); err == nil {
			lifetime = d
		}
	}
	if minFresh, ok := reqCC["min-fresh"]; ok {
		if d, err := time.ParseDuration(minFresh + "s"); err == nil {
			currentAge += d
		}
	}
	if maxStale, ok := reqCC["max-stale"]; ok {
		if maxStale == "" {
			return freshnessFresh
		}
		if d, err := time.ParseDuration(maxStale + "s"); err == nil {
			currentAge -= d
		}
	}

	if lifetime > currentAge {
		return freshnessFresh
	}
	return freshnessStale
}

// IsFresh/IsStale/IsTransparent are readable wrappers over Freshness's
// integer result for callers outside this package.
func IsFresh(f int) bool       { return f == freshnessFresh }
func IsStale(f int) bool       { return f == freshnessStale }
func IsTransparent(f int) bool { return f == freshnessTransparent }

// ConditionalHeaders synthesizes If-None-Match/If-Modified-Since headers
// from a stale cached entry, to be merged into the revalidation request.
func ConditionalHeaders(entry *Entry) http.Header {
	h := make(http.Header)
	if etag := entry.Header.Get("Etag"); etag != "" {
		h.Set("If-None-Match", etag)
	}
	if lastModified := entry.Header.Get("Last-Modified"); lastModified != "" {
		h.Set("If-Modified-Since", lastModified)
	}
	return h
}

// VaryHeaders derives the "X-Varied-*" snapshot an entry must store at
// admission time: for every header name the response's Vary directive
// lists, the matching value from the request that produced it.
func VaryHeaders(respHeader, reqHeader http.Header) http.Header {
	snapshot := make(http.Header)
	for _, name := range headerAllCommaSepValues(respHeader, "Vary") {
		name = http.CanonicalHeaderKey(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		snapshot.Set("X-Varied-"+name, reqHeader.Get(name))
	}
	return snapshot
}

// VaryMatches reports whether reqHeader's values for every header the
// entry's response originally varied on still match what was cached,
// following the teacher's varyMatches.
func VaryMatches(entry *Entry, reqHeader http.Header) bool {
	for name, vals := range entry.Header {
		const prefix = "X-Varied-"
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		original := name[len(prefix):]
		var want string
		if len(vals) > 0 {
			want = vals[0]
		}
		if reqHeader.Get(original) != want {
			return false
		}
	}
	return true
}

func headerAllCommaSepValues(headers http.Header, name string) []string {
	var out []string
	for _, v := range headers[http.CanonicalHeaderKey(name)] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// canStore reports whether a response may be stored at all (no-store on
// either side of the exchange forbids it).
func canStore(reqCC, respCC cacheControl) bool {
	if _, ok := respCC["no-store"]; ok {
		return false
	}
	if _, ok := reqCC["no-store"]; ok {
		return false
	}
	return true
}

// canStaleOnError reports whether the stale-if-error extension
// (RFC 5861) permits serving a stale entry when revalidation fails.
func canStaleOnError(respHeader, reqHeader http.Header) bool {
	respCC := parseCacheControl(respHeader)
	reqCC := parseCacheControl(reqHeader)

	lifetime := time.Duration(-1)
	check := func(cc cacheControl) (time.Duration, bool, bool) {
		v, ok := cc["stale-if-error"]
		if !ok {
			return 0, false, false
		}
		if v == "" {
			return 0, true, true
		}
		d, err := time.ParseDuration(v + "s")
		return d, err == nil, true
	}

	if d, ok, present := check(respCC); present {
		if !ok {
			return false
		}
		lifetime = d
	}
	if d, ok, present := check(reqCC); present {
		if !ok {
			return false
		}
		lifetime = d
	}

	if lifetime < 0 {
		return false
	}
	dateHeader := respHeader.Get("Date")
	if dateHeader == "" {
		return false
	}
	date, err := time.Parse(time.RFC1123, dateHeader)
	if err != nil {
		return false
	}
	return lifetime > time.Since(date)
}

var errNoDateHeader = errors.New("cache: no Date header")

type cacheControl map[string]string

func parseCacheControl(headers http.Header) cacheControl {
	cc := cacheControl{}
	for _, part := range strings.Split(headers.Get("Cache-Control"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '='); i >= 0 {
			cc[strings.TrimSpace(part[:i])] = strings.Trim(part[i+1:], `" `)
		} else {
			cc[part] = ""
		}
	}
	return cc
}
