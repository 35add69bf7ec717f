// Package h3 drives requests over HTTP/3: a UDP socket, a QUIC
// handshake, and header encoding via QPACK, delegated to
// github.com/quic-go/quic-go/http3.RoundTripper. This strategy has no
// teacher analog (the teacher only speaks H2); it follows the
// destination-safety checks and backoff rules of the expanded
// specification directly, using the quic-go API shape referenced across
// the retrieval pack's go.mod files.
package h3

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/ski-ext/streamhttp/errs"
	"github.com/ski-ext/streamhttp/protocol"
	"github.com/ski-ext/streamhttp/protocol/canon"
	"github.com/ski-ext/streamhttp/wire/qpack"
)

// CongestionController names which congestion-control algorithm a
// connection should use. Selecting the algorithm is in scope; tuning its
// internal parameters is not (non-goal).
type CongestionController string

const (
	CongestionDefault CongestionController = "default"
	CongestionBBR      CongestionController = "bbr"
)

// Config carries the H3-specific knobs from the client facade's
// configuration surface.
type Config struct {
	MaxIdleTimeout          time.Duration
	StreamReceiveWindow     uint64
	ConnectionReceiveWindow uint64
	SendWindow              uint64
	CongestionController    CongestionController
	TLSEarlyData            bool
	MaxFieldSectionSize     uint64
	EnableGrease            bool
	HandshakeTimeout        time.Duration
	AllowPrivateAddresses   bool
	AllowLoopback           bool
	TLSClientConfig         *tls.Config
}

// Strategy implements protocol.Strategy over HTTP/3.
type Strategy struct {
	cfg   Config
	rt    *http3.RoundTripper
	conns *protocol.ConnectionManager
}

// New builds an H3 strategy from cfg.
func New(cfg Config) *Strategy {
	s := &Strategy{cfg: cfg, conns: protocol.NewConnectionManager()}

	qcfg := &quic.Config{
		MaxIdleTimeout: durationOrDefault(cfg.MaxIdleTimeout, 30*time.Second),
		Allow0RTT:      cfg.TLSEarlyData,
	}
	if cfg.StreamReceiveWindow != 0 {
		qcfg.InitialStreamReceiveWindow = cfg.StreamReceiveWindow
	}
	if cfg.ConnectionReceiveWindow != 0 {
		qcfg.InitialConnectionReceiveWindow = cfg.ConnectionReceiveWindow
	}

	tlsCfg := cfg.TLSClientConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	}
	if len(tlsCfg.NextProtos) == 0 {
		tlsCfg = tlsCfg.Clone()
		tlsCfg.NextProtos = []string{http3.NextProtoH3}
	}

	s.rt = &http3.RoundTripper{
		TLSClientConfig: tlsCfg,
		QUICConfig:      qcfg,
		Dial:            s.dial,
	}
	return s
}

func (s *Strategy) ProtocolName() string { return "h3" }
func (s *Strategy) SupportsPush() bool   { return false }

func (s *Strategy) MaxConcurrentStreams() uint32 {
	return 100
}

// Connections returns the manager tracking this strategy's live
// connections, for the client facade's idle-sweep loop.
func (s *Strategy) Connections() *protocol.ConnectionManager { return s.conns }

// Close releases the underlying QUIC transport.
func (s *Strategy) Close() error { return s.rt.Close() }

// dial resolves addr, rejects unsafe destinations, and drives the QUIC
// handshake with a bounded timeout. It is plugged into
// http3.RoundTripper.Dial so every connection this strategy opens goes
// through the safety check first.
func (s *Strategy) dial(ctx context.Context, addr string, tlsCfg *tls.Config, qcfg *quic.Config) (quic.EarlyConnection, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if !s.destinationSafe(ip.IP) {
			return nil, errs.New(errs.KindSecurity, "h3.dial", "destination address is not allowed").WithTarget(ip.String())
		}
	}

	hctx := ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}

	return dialWithBackoff(hctx, addr, tlsCfg, qcfg)
}

// dialWithBackoff drives quic.DialAddrEarly, retrying transient
// connection-setup errors with exponential backoff capped at 100ms, per
// the expanded specification's handshake step.
func dialWithBackoff(ctx context.Context, addr string, tlsCfg *tls.Config, qcfg *quic.Config) (quic.EarlyConnection, error) {
	backoff := time.Millisecond
	const cap_ = 100 * time.Millisecond
	var lastErr error
	for {
		conn, err := quic.DialAddrEarly(ctx, addr, tlsCfg, qcfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("quic dial %s: %w (last attempt: %v)", addr, ctx.Err(), lastErr)
		}
		if backoff < cap_ {
			backoff *= 2
			if backoff > cap_ {
				backoff = cap_
			}
		}
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok {
		return netErr.Timeout()
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}

// destinationSafe implements the destination-safety blocklist: unspecified
// and broadcast addresses are always rejected; loopback is rejected unless
// AllowLoopback is set; link-local, multicast and private-range addresses
// are rejected unless AllowPrivateAddresses is set.
func (s *Strategy) destinationSafe(ip net.IP) bool {
	if ip.IsUnspecified() {
		return false
	}
	if ip.IsLoopback() {
		return s.cfg.AllowLoopback
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return s.cfg.AllowPrivateAddresses
	}
	if ip.IsMulticast() {
		return s.cfg.AllowPrivateAddresses
	}
	if ip4 := ip.To4(); ip4 != nil && ip4.Equal(net.IPv4bcast) {
		return false
	}
	if ip.IsPrivate() {
		return s.cfg.AllowPrivateAddresses
	}
	return true
}

// Execute performs one request/response exchange over HTTP/3.
func (s *Strategy) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	httpReq, err := protocol.ToHTTPRequest(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "h3.encode", err)
	}

	connKey := httpReq.URL.Scheme + "://" + httpReq.URL.Host
	conn := s.conns.GetOrCreate(connKey, protocol.ConnH3)
	conn.BeginStream()
	defer conn.EndStream()

	// Side-channel QPACK encode for telemetry, mirroring h2.Strategy's
	// HPACK encode; the actual wire encoding is still performed by
	// http3.RoundTripper itself.
	var headerBlockBytes int
	if block, qerr := qpack.New().SerializeHeaders(protocol.PseudoHeaderMap(httpReq)); qerr != nil {
		slog.Warn("qpack header encode failed", "error", qerr)
	} else {
		headerBlockBytes = len(block)
	}

	httpResp, err := s.rt.RoundTrip(httpReq)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "h3.roundtrip", err).WithTarget(connKey)
	}

	encoding := httpResp.Header.Get("Content-Encoding")
	if encoding != "" {
		body, derr := protocol.DecodeContentEncoding(encoding, httpResp.Body)
		if derr != nil {
			return nil, errs.Wrap(errs.KindProtocol, "h3.decode", derr).WithTarget(connKey)
		}
		httpResp.Header.Del("Content-Encoding")
		httpResp.Header.Del("Content-Length")
		httpResp.ContentLength = -1
		httpResp.Body = body
	}

	resp, err := canon.Canonicalize(ctx, protocol.RawChunksFromHTTPResponse(httpResp))
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "h3.canonicalize", err).WithTarget(connKey)
	}
	resp.RequestHeaderBytes = headerBlockBytes
	return resp, nil
}

func durationOrDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
