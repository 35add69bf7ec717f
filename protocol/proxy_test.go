package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinProxyCyclesInOrder(t *testing.T) {
	ctx := WithRoundRobinProxy(context.Background(), "http://proxy-a:8080", "http://proxy-b:8080")

	first, err := ProxyFromContext(ctx)
	require.NoError(t, err)
	second, err := ProxyFromContext(ctx)
	require.NoError(t, err)
	third, err := ProxyFromContext(ctx)
	require.NoError(t, err)

	assert.Equal(t, "proxy-a:8080", first.Host)
	assert.Equal(t, "proxy-b:8080", second.Host)
	assert.Equal(t, "proxy-a:8080", third.Host, "rotation must wrap back to the first proxy")
}

func TestProxyFromContextWithNoProxySet(t *testing.T) {
	u, err := ProxyFromContext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestWithRoundRobinProxyDropsUnparsableURLs(t *testing.T) {
	ctx := WithRoundRobinProxy(context.Background(), "http://good:8080", "http://bad host")

	u, err := ProxyFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "good:8080", u.Host)
}

func TestWithRoundRobinProxyNoURLsIsNoop(t *testing.T) {
	ctx := WithRoundRobinProxy(context.Background())
	u, err := ProxyFromContext(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)
}
