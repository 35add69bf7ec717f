package tlstrust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLeaf(t *testing.T, dnsNames []string, ips []net.IP, cn string, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestValidateStructureTimeWindow(t *testing.T) {
	now := time.Now()
	cert := makeLeaf(t, []string{"example.com"}, nil, "", now.Add(-time.Hour), now.Add(time.Hour))

	assert.NoError(t, ValidateStructure(cert, now, false))
	assert.Error(t, ValidateStructure(cert, now.Add(-2*time.Hour), false), "not yet valid")
	assert.Error(t, ValidateStructure(cert, now.Add(2*time.Hour), false), "expired")
}

func TestValidateStructureRequireCA(t *testing.T) {
	now := time.Now()
	leaf := makeLeaf(t, []string{"example.com"}, nil, "", now.Add(-time.Hour), now.Add(time.Hour))
	assert.Error(t, ValidateStructure(leaf, now, true), "leaf is not a CA")
}

func TestMatchesHostnameExact(t *testing.T) {
	cert := makeLeaf(t, []string{"example.com"}, nil, "", time.Now(), time.Now().Add(time.Hour))
	assert.True(t, MatchesHostname(cert, "example.com"))
	assert.False(t, MatchesHostname(cert, "other.com"))
}

func TestMatchesHostnameWildcardSingleLabel(t *testing.T) {
	cert := makeLeaf(t, []string{"*.example.com"}, nil, "", time.Now(), time.Now().Add(time.Hour))
	assert.True(t, MatchesHostname(cert, "foo.example.com"))
	assert.False(t, MatchesHostname(cert, "example.com"), "wildcard does not match the bare domain")
	assert.False(t, MatchesHostname(cert, "foo.bar.example.com"), "wildcard only covers one label")
}

func TestMatchesHostnameIPAddress(t *testing.T) {
	cert := makeLeaf(t, nil, []net.IP{net.ParseIP("10.0.0.1")}, "", time.Now(), time.Now().Add(time.Hour))
	assert.True(t, MatchesHostname(cert, "10.0.0.1"))
	assert.False(t, MatchesHostname(cert, "10.0.0.2"))
}

func TestMatchesHostnameCommonNameFallback(t *testing.T) {
	cert := makeLeaf(t, nil, nil, "legacy.example.com", time.Now(), time.Now().Add(time.Hour))
	assert.True(t, MatchesHostname(cert, "legacy.example.com"))
	assert.True(t, HostnameMatchedViaCN(cert, "legacy.example.com"))
}

func TestMatchesHostnameCNIgnoredWhenSANPresent(t *testing.T) {
	cert := makeLeaf(t, []string{"real.example.com"}, nil, "ignored-cn.example.com", time.Now(), time.Now().Add(time.Hour))
	assert.False(t, MatchesHostname(cert, "ignored-cn.example.com"))
	assert.True(t, MatchesHostname(cert, "real.example.com"))
}

func TestNewRevocationKeyStableForSameInputs(t *testing.T) {
	now := time.Now()
	issuer := makeLeaf(t, []string{"ca.example.com"}, nil, "", now.Add(-time.Hour), now.Add(time.Hour))
	leaf := makeLeaf(t, []string{"example.com"}, nil, "", now.Add(-time.Hour), now.Add(time.Hour))

	k1 := NewRevocationKey(leaf, issuer)
	k2 := NewRevocationKey(leaf, issuer)
	assert.Equal(t, k1.cacheKey(), k2.cacheKey())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "valid", OutcomeValid.String())
	assert.Equal(t, "revoked", OutcomeRevoked.String())
	assert.Equal(t, "unknown", OutcomeUnknown.String())
}
