package h3

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func deadlineCtx(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestDestinationSafeRejectsUnspecifiedAndBroadcast(t *testing.T) {
	s := New(Config{})
	assert.False(t, s.destinationSafe(net.IPv4zero))
	assert.False(t, s.destinationSafe(net.IPv4bcast))
}

func TestDestinationSafeLoopbackRequiresOptIn(t *testing.T) {
	loopback := net.ParseIP("127.0.0.1")

	s := New(Config{})
	assert.False(t, s.destinationSafe(loopback))

	s = New(Config{AllowLoopback: true})
	assert.True(t, s.destinationSafe(loopback))
}

func TestDestinationSafeLinkLocalAndPrivateRequireOptIn(t *testing.T) {
	linkLocal := net.ParseIP("169.254.1.1")
	private := net.ParseIP("10.0.0.5")
	multicast := net.ParseIP("224.0.0.1")

	s := New(Config{})
	assert.False(t, s.destinationSafe(linkLocal))
	assert.False(t, s.destinationSafe(private))
	assert.False(t, s.destinationSafe(multicast))

	s = New(Config{AllowPrivateAddresses: true})
	assert.True(t, s.destinationSafe(linkLocal))
	assert.True(t, s.destinationSafe(private))
	assert.True(t, s.destinationSafe(multicast))
}

func TestDestinationSafeAllowsPublicAddresses(t *testing.T) {
	s := New(Config{})
	assert.True(t, s.destinationSafe(net.ParseIP("93.184.216.34")))
}

func TestProtocolNameAndPushSupport(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, "h3", s.ProtocolName())
	assert.False(t, s.SupportsPush())
	assert.EqualValues(t, 100, s.MaxConcurrentStreams())
}

func TestDialWithBackoffGivesUpOnContextCancellation(t *testing.T) {
	// A non-routable TEST-NET-1 address with a very short deadline
	// exercises the backoff loop's context.Done exit path without
	// depending on a live network.
	start := time.Now()
	_, err := dialWithBackoff(
		deadlineCtx(t, 30*time.Millisecond),
		"203.0.113.1:443",
		&tls.Config{ServerName: "example.invalid", InsecureSkipVerify: true},
		nil,
	)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
