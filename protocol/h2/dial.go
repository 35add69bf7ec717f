// Package h2 drives requests over HTTP/2: TLS handshake via utls (for
// fingerprint control, the teacher's dialTLSWithContext technique in
// fetch/http2/patch.go), frame multiplexing delegated to
// golang.org/x/net/http2.Transport.
package h2

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/ski-ext/streamhttp/protocol"
)

// HelloSpecFunc optionally returns a custom ClientHello fingerprint to
// apply via utls.HelloCustom; nil uses utls.HelloGolang, matching the
// teacher's default when GetTlsClientHelloSpec is unset.
type HelloSpecFunc func() *utls.ClientHelloSpec

// tlsConn adapts a utls client connection so it reports
// crypto/tls.ConnectionState, which is the shape
// golang.org/x/net/http2.Transport needs to read back the negotiated
// ALPN protocol after a custom DialTLSContext hook.
type tlsConn struct {
	*utls.UConn
}

func (c *tlsConn) ConnectionState() tls.ConnectionState {
	return c.UConn.ConnectionState().ConnectionState
}

// DialTLS opens network/addr, performs a utls handshake with the given
// config, and returns a net.Conn whose ConnectionState() is readable by
// the standard http2 transport.
func DialTLS(ctx context.Context, network, addr string, cfg *tls.Config, hello HelloSpecFunc) (net.Conn, error) {
	var d net.Dialer

	var raw net.Conn
	var err error
	proxyURL, perr := protocol.ProxyFromContext(ctx)
	if perr == nil && proxyURL != nil {
		raw, err = dialThroughProxy(ctx, &d, proxyURL, addr)
	} else {
		raw, err = d.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}

	uCfg := &utls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		NextProtos:         cfg.NextProtos,
		RootCAs:            cfg.RootCAs,
	}

	var uconn *utls.UConn
	if hello != nil {
		uconn = utls.UClient(raw, uCfg, utls.HelloCustom)
		if spec := hello(); spec != nil {
			if err := uconn.ApplyPreset(spec); err != nil {
				_ = raw.Close()
				return nil, err
			}
		}
	} else {
		uconn = utls.UClient(raw, uCfg, utls.HelloGolang)
	}

	if err := uconn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &tlsConn{UConn: uconn}, nil
}

// dialThroughProxy opens a TCP connection to proxyURL's host and issues
// an HTTP CONNECT to establish a tunnel to targetAddr, returning the raw
// tunnel connection ready for a TLS handshake with the origin server.
func dialThroughProxy(ctx context.Context, d *net.Dialer, proxyURL *url.URL, targetAddr string) (net.Conn, error) {
	proxyAddr := proxyURL.Host
	if proxyURL.Port() == "" {
		proxyAddr = net.JoinHostPort(proxyURL.Hostname(), "80")
	}
	conn, err := d.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("h2: dial proxy %s: %w", proxyAddr, err)
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: targetAddr},
		Host:   targetAddr,
		Header: make(http.Header),
	}
	if proxyURL.User != nil {
		connectReq.Header.Set("Proxy-Authorization", "Basic "+basicAuth(proxyURL.User))
	}
	if err := connectReq.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("h2: write CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("h2: read CONNECT response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("h2: proxy CONNECT failed: %s", resp.Status)
	}
	return conn, nil
}

func basicAuth(u *url.Userinfo) string {
	password, _ := u.Password()
	return base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + password))
}

// dialTimeoutOrDefault returns d if positive, else a sane default for a
// single TLS dial attempt.
func dialTimeoutOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 10 * time.Second
}
