package h2

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/ski-ext/streamhttp/errs"
	"github.com/ski-ext/streamhttp/protocol"
	"github.com/ski-ext/streamhttp/protocol/canon"
	"github.com/ski-ext/streamhttp/wire/hpack"
)

// Config carries the H2-specific knobs from the client facade's
// configuration surface: flow-control windows, frame size, concurrency,
// and an optional TLS fingerprint hook.
type Config struct {
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxConcurrentStreams uint32
	MaxHeaderListSize    uint32
	EnablePush           bool
	DisableCompression   bool
	DialTimeout          time.Duration
	HelloSpec            HelloSpecFunc
	TLSClientConfig      *tls.Config
}

// Strategy implements protocol.Strategy over HTTP/2.
type Strategy struct {
	cfg   Config
	t     *http2.Transport
	conns *protocol.ConnectionManager
}

// New builds an H2 strategy from cfg.
func New(cfg Config) *Strategy {
	s := &Strategy{cfg: cfg, conns: protocol.NewConnectionManager()}
	s.t = &http2.Transport{
		// This layer owns Accept-Encoding negotiation and decoding
		// itself (protocol.DecodeContentEncoding), so the inner
		// transport is told not to do it transparently.
		DisableCompression: true,
	}
	if cfg.MaxHeaderListSize != 0 {
		s.t.MaxHeaderListSize = cfg.MaxHeaderListSize
	}
	if cfg.MaxFrameSize != 0 {
		s.t.MaxReadFrameSize = cfg.MaxFrameSize
	}
	if cfg.TLSClientConfig != nil {
		s.t.TLSClientConfig = cfg.TLSClientConfig
	}
	s.t.DialTLSContext = func(ctx context.Context, network, addr string, tcfg *tls.Config) (net.Conn, error) {
		dctx, cancel := context.WithTimeout(ctx, dialTimeoutOrDefault(cfg.DialTimeout))
		defer cancel()
		return DialTLS(dctx, network, addr, tcfg, cfg.HelloSpec)
	}
	return s
}

func (s *Strategy) ProtocolName() string { return "h2" }
func (s *Strategy) SupportsPush() bool   { return s.cfg.EnablePush }

func (s *Strategy) MaxConcurrentStreams() uint32 {
	if s.cfg.MaxConcurrentStreams != 0 {
		return s.cfg.MaxConcurrentStreams
	}
	return 100
}

// Connections returns the manager tracking this strategy's live
// connections, for the client facade's idle-sweep loop.
func (s *Strategy) Connections() *protocol.ConnectionManager { return s.conns }

// Execute performs one request/response exchange over HTTP/2.
func (s *Strategy) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	httpReq, err := protocol.ToHTTPRequest(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "h2.encode", err)
	}
	if !s.cfg.DisableCompression && httpReq.Header.Get("Accept-Encoding") == "" && httpReq.Method != http.MethodHead {
		httpReq.Header.Set("Accept-Encoding", protocol.DefaultAcceptEncoding)
	}

	connKey := httpReq.URL.Scheme + "://" + httpReq.URL.Host
	conn := s.conns.GetOrCreate(connKey, protocol.ConnH2)
	conn.BeginStream()
	defer conn.EndStream()

	// The request's header block is also encoded via the HPACK codec
	// (:method/:scheme/:authority/:path pseudo-headers first), giving the
	// client facade an accurate header-byte count for its telemetry. The
	// transport below still performs the wire-level HPACK encoding itself;
	// this encode is a side channel, not a substitute for it, so a failure
	// here is logged and never aborts the request.
	var headerBlockBytes int
	if block, herr := hpack.New(0).SerializeHeaders(protocol.PseudoHeaderMap(httpReq)); herr != nil {
		slog.Warn("hpack header encode failed", "error", herr)
	} else {
		headerBlockBytes = len(block)
	}

	httpResp, err := s.roundTripWithRetry(httpReq, req.RetryAttempts)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "h2.roundtrip", err).WithTarget(connKey)
	}

	if !s.cfg.DisableCompression {
		encoding := httpResp.Header.Get("Content-Encoding")
		body, derr := protocol.DecodeContentEncoding(encoding, httpResp.Body)
		if derr != nil {
			return nil, errs.Wrap(errs.KindProtocol, "h2.decode", derr).WithTarget(connKey)
		}
		if encoding != "" {
			httpResp.Header.Del("Content-Encoding")
			httpResp.Header.Del("Content-Length")
			httpResp.ContentLength = -1
			httpResp.Body = body
		}
	}

	resp, err := canon.Canonicalize(ctx, protocol.RawChunksFromHTTPResponse(httpResp))
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "h2.canonicalize", err).WithTarget(connKey)
	}
	resp.RequestHeaderBytes = headerBlockBytes
	return resp, nil
}

// roundTripWithRetry retries a failed RoundTrip with exponential backoff
// plus jitter, the same shape as the teacher's Transport.roundTrip
// retry loop, bounded by the request's configured attempt count.
func (s *Strategy) roundTripWithRetry(req *http.Request, attempts int) (*http.Response, error) {
	var lastErr error
	for try := 0; try <= attempts; try++ {
		resp, err := s.t.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if try == attempts {
			break
		}
		backoff := time.Duration(1<<uint(try)) * 100 * time.Millisecond
		backoff += time.Duration(rand.Float64() * float64(100*time.Millisecond))
		if backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}
	}
	return nil, lastErr
}
