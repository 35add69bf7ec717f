package tlstrust

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// DefaultCRLTTL is used for a fetched CRL with no explicit NextUpdate.
const DefaultCRLTTL = 24 * time.Hour

// crlCacheEntry is one cached, parsed CRL.
type crlCacheEntry struct {
	list       *x509.RevocationList
	fetchedAt  time.Time
	expiresAt  time.Time
}

// CRLCache fetches and caches Certificate Revocation Lists by
// distribution-point URL, reusing a parsed list until its NextUpdate (or
// DefaultCRLTTL, absent one) elapses.
type CRLCache struct {
	mu      sync.Mutex
	entries map[string]*crlCacheEntry
	fetch   *http.Client

	hits, misses uint64
}

// NewCRLCache returns a CRLCache that fetches over fetchClient. Pass nil
// to use NoRevocationClient(), the package's default no-cache HTTP client
// dedicated to breaking the CRL/OCSP fetch cycle (a revocation fetch must
// never itself be intercepted by the response cache or trigger another
// revocation check).
func NewCRLCache(fetchClient *http.Client) *CRLCache {
	if fetchClient == nil {
		fetchClient = NoRevocationClient()
	}
	return &CRLCache{entries: make(map[string]*crlCacheEntry), fetch: fetchClient}
}

// Check reports whether serial is listed as revoked on the CRL at url,
// fetching and parsing the CRL if not already cached or if its TTL has
// elapsed. A fetch/parse failure returns OutcomeUnknown, never
// OutcomeRevoked or OutcomeValid — a cache or network failure must never
// silently promote a certificate to "checked and fine".
func (c *CRLCache) Check(ctx context.Context, url string, key RevocationKey) Outcome {
	entry := c.lookup(url)
	if entry == nil {
		fetched, err := c.fetchAndParse(ctx, url)
		if err != nil {
			return OutcomeUnknown
		}
		entry = fetched
		c.store(url, entry)
	}

	serial, ok := parseSerial(key.SerialNumber)
	if !ok {
		return OutcomeUnknown
	}
	if _, revoked := serialRevoked(entry.list.RevokedCertificates, serial); revoked {
		return OutcomeRevoked
	}
	return OutcomeValid
}

func (c *CRLCache) lookup(url string) *crlCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		c.misses++
		return nil
	}
	if time.Now().After(e.expiresAt) {
		c.misses++
		return nil
	}
	c.hits++
	return e
}

func (c *CRLCache) store(url string, e *crlCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = e
}

func (c *CRLCache) fetchAndParse(ctx context.Context, url string) (*crlCacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.fetch.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tlstrust: CRL fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	list, err := x509.ParseRevocationList(body)
	if err != nil {
		return nil, fmt.Errorf("tlstrust: parse CRL %s: %w", url, err)
	}

	ttl := DefaultCRLTTL
	if !list.NextUpdate.IsZero() {
		if d := time.Until(list.NextUpdate); d > 0 {
			ttl = d
		}
	}
	now := time.Now()
	return &crlCacheEntry{list: list, fetchedAt: now, expiresAt: now.Add(ttl)}, nil
}

// Cleanup evicts every entry past its expiry, bounding memory for a
// long-lived client that has talked to many distinct CRL distribution
// points.
func (c *CRLCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for url, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, url)
		}
	}
}

// Stats reports cumulative hit/miss counters.
func (c *CRLCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func parseSerial(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}
