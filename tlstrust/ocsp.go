package tlstrust

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// DefaultOCSPTTL is used for a successful OCSP response with no
// NextUpdate.
const DefaultOCSPTTL = time.Hour

type ocspCacheEntry struct {
	outcome   Outcome
	expiresAt time.Time
}

// OCSPCache performs and caches Online Certificate Status Protocol
// lookups, keyed by RevocationKey. Requests use SHA-256 for their CertID
// hashes.
type OCSPCache struct {
	mu      sync.Mutex
	entries map[string]*ocspCacheEntry
	nonces  sync.Map // cacheKey -> []byte, a nonce recorded per lookup; the encoded request does not carry it and responses are not checked against it
	fetch   *http.Client

	hits, misses uint64
}

// NewOCSPCache returns an OCSPCache that fetches over fetchClient (nil
// uses NoRevocationClient()).
func NewOCSPCache(fetchClient *http.Client) *OCSPCache {
	if fetchClient == nil {
		fetchClient = NoRevocationClient()
	}
	return &OCSPCache{entries: make(map[string]*ocspCacheEntry), fetch: fetchClient}
}

// Check queries responderURL for leaf's status (issued by issuer),
// returning a cached outcome when still within its TTL. A transport or
// parse failure returns OutcomeUnknown rather than being conflated with a
// confirmed-good response.
func (c *OCSPCache) Check(ctx context.Context, responderURL string, leaf, issuer *x509.Certificate) Outcome {
	key := NewRevocationKey(leaf, issuer)
	ck := key.cacheKey()

	if cached := c.lookup(ck); cached != nil {
		return cached.outcome
	}

	outcome, ttl, err := c.fetchAndVerify(ctx, responderURL, leaf, issuer, ck)
	if err != nil {
		return OutcomeUnknown
	}
	c.store(ck, &ocspCacheEntry{outcome: outcome, expiresAt: time.Now().Add(ttl)})
	return outcome
}

func (c *OCSPCache) lookup(key string) *ocspCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		c.misses++
		return nil
	}
	c.hits++
	return e
}

func (c *OCSPCache) store(key string, e *ocspCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

func (c *OCSPCache) fetchAndVerify(ctx context.Context, responderURL string, leaf, issuer *x509.Certificate, cacheKey string) (Outcome, time.Duration, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return OutcomeUnknown, 0, err
	}
	c.nonces.Store(cacheKey, nonce)

	reqBytes, err := ocsp.CreateRequest(leaf, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return OutcomeUnknown, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, responderURL, bytes.NewReader(reqBytes))
	if err != nil {
		return OutcomeUnknown, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := c.fetch.Do(httpReq)
	if err != nil {
		return OutcomeUnknown, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return OutcomeUnknown, 0, fmt.Errorf("tlstrust: OCSP responder %s: status %d", responderURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return OutcomeUnknown, 0, err
	}

	parsed, err := ocsp.ParseResponseForCert(body, leaf, issuer)
	if err != nil {
		return OutcomeUnknown, 0, err
	}

	ttl := DefaultOCSPTTL
	if !parsed.NextUpdate.IsZero() {
		if d := time.Until(parsed.NextUpdate); d > 0 {
			ttl = d
		}
	}

	switch parsed.Status {
	case ocsp.Good:
		return OutcomeValid, ttl, nil
	case ocsp.Revoked:
		return OutcomeRevoked, ttl, nil
	default:
		return OutcomeUnknown, ttl, nil
	}
}

// Cleanup evicts every entry (and its recorded nonce) past its expiry.
func (c *OCSPCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			c.nonces.Delete(k)
		}
	}
}

// Stats reports cumulative hit/miss counters.
func (c *OCSPCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// NoRevocationClient returns the isolated HTTP client CRL/OCSP fetches
// must use: no response cache wrapping, and no revocation checking of its
// own, breaking the cycle a revocation-aware default transport would
// otherwise create (fetching a CRL would trigger fetching a CRL...).
func NoRevocationClient() *http.Client {
	return &http.Client{
		Transport: http.DefaultTransport,
		Timeout:   10 * time.Second,
	}
}
