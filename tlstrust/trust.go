// Package tlstrust implements the certificate trust layer: X.509 parsing
// and chain-independent validation (time window, BasicConstraints,
// KeyUsage, hostname matching), plus CRL and OCSP revocation checking
// backed by short-TTL caches.
//
// Certificate parsing/validation builds directly on crypto/x509 — no
// ecosystem library in the retrieval pack offers anything beyond what the
// standard library already does here, so this is the one subsystem where
// stdlib is the correct choice rather than a concession (see DESIGN.md).
// OCSP request/response encoding uses golang.org/x/crypto/ocsp, the
// client-side counterpart the pack's one OCSP-adjacent file
// (other_examples' boulder-derived responder) depends on.
package tlstrust

import (
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"time"
)

// Outcome is the tri-state result of a revocation check: a real "I
// checked and it's fine" must be distinguishable from "I couldn't find
// out".
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeValid
	OutcomeRevoked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// ValidationError reports which structural check on a certificate failed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "tlstrust: " + e.Reason }

// ValidateStructure checks cert's time window, BasicConstraints, and
// KeyUsage, independent of chain building or revocation. now is injected
// so tests can exercise expiry without depending on wall-clock time.
func ValidateStructure(cert *x509.Certificate, now time.Time, requireCA bool) error {
	if now.Before(cert.NotBefore) {
		return &ValidationError{Reason: fmt.Sprintf("certificate not valid until %s", cert.NotBefore)}
	}
	if now.After(cert.NotAfter) {
		return &ValidationError{Reason: fmt.Sprintf("certificate expired %s", cert.NotAfter)}
	}
	if requireCA {
		if !cert.BasicConstraintsValid || !cert.IsCA {
			return &ValidationError{Reason: "certificate is not a valid CA"}
		}
		if cert.KeyUsage != 0 && cert.KeyUsage&x509.KeyUsageCertSign == 0 {
			return &ValidationError{Reason: "certificate key usage does not permit certificate signing"}
		}
	}
	return nil
}

// MatchesHostname reports whether host satisfies one of cert's Subject
// Alternative Names (DNS or IP), falling back to the CommonName only when
// no SAN DNS entries are present at all (a legacy, discouraged but
// widely-tolerated fallback; callers may want to log a warning when this
// path is taken — HostnameMatchedViaCN reports it).
func MatchesHostname(cert *x509.Certificate, host string) bool {
	matched, _ := matchesHostname(cert, host)
	return matched
}

// HostnameMatchedViaCN reports whether host only matched through the
// CommonName fallback rather than a proper SAN entry.
func HostnameMatchedViaCN(cert *x509.Certificate, host string) bool {
	_, viaCN := matchesHostname(cert, host)
	return viaCN
}

func matchesHostname(cert *x509.Certificate, host string) (matched bool, viaCN bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if ip := net.ParseIP(host); ip != nil {
		for _, candidate := range cert.IPAddresses {
			if candidate.Equal(ip) {
				return true, false
			}
		}
		return false, false
	}

	if len(cert.DNSNames) == 0 && cert.Subject.CommonName != "" {
		if matchesDNSPattern(strings.ToLower(cert.Subject.CommonName), host) {
			return true, true
		}
		return false, false
	}

	for _, name := range cert.DNSNames {
		if matchesDNSPattern(strings.ToLower(name), host) {
			return true, false
		}
	}
	return false, false
}

// matchesDNSPattern implements RFC 6125 §6.4.3 leftmost-label wildcard
// matching: "*.example.com" matches "foo.example.com" but not
// "example.com" or "foo.bar.example.com", and a wildcard must be the
// entire leftmost label (never "f*.example.com" partial matching, which
// this implementation treats as a literal label instead of expanding).
func matchesDNSPattern(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	patternRest := pattern[2:]
	i := strings.IndexByte(host, '.')
	if i < 0 {
		return false
	}
	return host[i+1:] == patternRest
}

// RevocationKey identifies a certificate for cache indexing: SHA-256 over
// the issuer's raw Subject DN and over its raw SubjectPublicKeyInfo, plus
// the leaf's serial number in decimal. The same key works for both caches.
type RevocationKey struct {
	IssuerNameHash [32]byte
	IssuerKeyHash  [32]byte
	SerialNumber   string
}

// NewRevocationKey derives a RevocationKey from a leaf certificate and its
// issuer, using SHA-256 over the issuer's Subject DN and public key as
// OCSP's CertID does.
func NewRevocationKey(leaf, issuer *x509.Certificate) RevocationKey {
	return RevocationKey{
		IssuerNameHash: sha256.Sum256(issuer.RawSubject),
		IssuerKeyHash:  sha256.Sum256(issuer.RawSubjectPublicKeyInfo),
		SerialNumber:   leaf.SerialNumber.String(),
	}
}

func (k RevocationKey) cacheKey() string {
	return fmt.Sprintf("%x:%x:%s", k.IssuerNameHash, k.IssuerKeyHash, k.SerialNumber)
}

// revokedEntry is the shape a CRL lookup resolves a serial number to.
type revokedEntry struct {
	Serial         *big.Int
	RevocationTime time.Time
}

func serialRevoked(list []pkix.RevokedCertificate, serial *big.Int) (time.Time, bool) {
	for _, r := range list {
		if r.SerialNumber.Cmp(serial) == 0 {
			return r.RevocationTime, true
		}
	}
	return time.Time{}, false
}
