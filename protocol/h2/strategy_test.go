package h2

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ski-ext/streamhttp/protocol"
)

func newH2TestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(handler)
	srv.EnableHTTP2 = true
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteGetRequest(t *testing.T) {
	srv := newH2TestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, r.ProtoAtLeast(2, 0))
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	})

	strat := New(Config{
		DialTimeout:     5 * time.Second,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	})

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	resp, err := strat.Execute(context.Background(), &protocol.Request{
		Method: protocol.MethodGet,
		URL:    u,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	var found bool
	for {
		h, ok := resp.Headers.Next(context.Background())
		if !ok {
			break
		}
		if h.Name == "X-Test" && h.Value == "yes" {
			found = true
		}
	}
	assert.True(t, found)

	var body []byte
	for {
		c, ok := resp.Body.Next(context.Background())
		if !ok {
			break
		}
		body = append(body, c.Data...)
	}
	assert.Equal(t, "hello", string(body))
}

func TestExecutePostWithBytesBody(t *testing.T) {
	srv := newH2TestServer(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		_, _ = w.Write(buf[:n])
	})

	strat := New(Config{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}})
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	resp, err := strat.Execute(context.Background(), &protocol.Request{
		Method: protocol.MethodPost,
		URL:    u,
		Body:   protocol.Body{Kind: protocol.BodyBytes, Bytes: []byte("payload")},
	})
	require.NoError(t, err)

	var body []byte
	for {
		c, ok := resp.Body.Next(context.Background())
		if !ok {
			break
		}
		body = append(body, c.Data...)
	}
	assert.Equal(t, "payload", string(body))
}

func TestProtocolNameAndConcurrency(t *testing.T) {
	strat := New(Config{MaxConcurrentStreams: 50})
	assert.Equal(t, "h2", strat.ProtocolName())
	assert.Equal(t, uint32(50), strat.MaxConcurrentStreams())
	assert.False(t, strat.SupportsPush())
}
