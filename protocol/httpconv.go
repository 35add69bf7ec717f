package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ski-ext/streamhttp/multipart"
	"github.com/ski-ext/streamhttp/stream"
)

// ToHTTPRequest freezes a Request into a *http.Request a net/http-shaped
// transport (golang.org/x/net/http2.Transport, quic-go/http3.RoundTripper)
// can drive. The body variant is serialized exactly once here, per the
// request body invariant: retries re-read the same frozen *http.Request.
func ToHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var bodyReader io.Reader = http.NoBody
	extraContentType := ""

	switch req.Body.Kind {
	case BodyNone:
	case BodyBytes:
		bodyReader = bytes.NewReader(req.Body.Bytes)
	case BodyText:
		bodyReader = strings.NewReader(req.Body.Text)
	case BodyJSON:
		bodyReader = bytes.NewReader(req.Body.JSON)
		extraContentType = "application/json"
	case BodyForm:
		form := url.Values{}
		for k, v := range req.Body.Form {
			form.Set(k, v)
		}
		bodyReader = strings.NewReader(form.Encode())
		extraContentType = "application/x-www-form-urlencoded"
	case BodyMultipart:
		data, contentType, err := multipart.Serialize(req.Body.Multipart)
		if err != nil {
			return nil, fmt.Errorf("encode multipart body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		extraContentType = contentType
	default:
		return nil, fmt.Errorf("unknown body kind %d", req.Body.Kind)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	for name, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(name, v)
		}
	}
	if extraContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", extraContentType)
	}
	return httpReq, nil
}

// RawChunksFromHTTPResponse adapts a *http.Response into the tagged
// RawChunk stream protocol/canon.Canonicalize consumes: a headers chunk,
// then body chunks read directly off the wire, then any trailers, then an
// end marker. Every strategy routes its response through this and
// Canonicalize rather than building a Response by hand, so canon stays the
// single place a raw chunk stream becomes the three canonical substreams.
//
// The body loop holds back the most recently read chunk by one iteration:
// the common Reader contract delivers the last bytes as (n, nil) and only
// reports (0, io.EOF) on the following call, so Final can only be known
// once that second call is observed. Trailers are read from res.Trailer
// only after the body loop has hit EOF, since net/http doesn't populate
// them until the body has been read to completion.
func RawChunksFromHTTPResponse(res *http.Response) *stream.Stream[RawChunk] {
	headers := make(map[string][]string, len(res.Header))
	for name, vals := range res.Header {
		headers[name] = append([]string(nil), vals...)
	}

	return stream.WithChannel[RawChunk](0, func(ctx context.Context, send stream.Sender[RawChunk]) {
		send.Emit(ctx, RawChunk{Kind: RawHeaders, Status: res.StatusCode, Proto: res.Proto, Headers: headers})

		defer res.Body.Close()
		buf := make([]byte, 32*1024)
		var pending *RawChunk
		for {
			n, err := res.Body.Read(buf)
			if n > 0 {
				if pending != nil {
					send.Emit(ctx, *pending)
				}
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				pending = &RawChunk{Kind: RawBody, Data: chunk}
			}
			if err != nil {
				if err == io.EOF {
					if pending == nil {
						pending = &RawChunk{Kind: RawBody}
					}
					pending.Final = true
					send.Emit(ctx, *pending)
				} else {
					if pending != nil {
						send.Emit(ctx, *pending)
					}
					send.Emit(ctx, RawChunk{Kind: RawError, Message: err.Error()})
					return
				}
				break
			}
		}

		if len(res.Trailer) > 0 {
			trailers := make(map[string][]string, len(res.Trailer))
			for name, vals := range res.Trailer {
				trailers[name] = append([]string(nil), vals...)
			}
			send.Emit(ctx, RawChunk{Kind: RawTrailers, Headers: trailers})
		}
		send.Emit(ctx, RawChunk{Kind: RawEnd})
	})
}

// PseudoHeaderMap flattens an *http.Request into the header map the wire
// codecs (wire/hpack, wire/qpack) encode: HTTP/2-style pseudo-headers
// (:method, :scheme, :authority, :path) ahead of the regular header set,
// collapsed to one value per name since both codecs' SerializeHeaders
// contract is map[string]string.
func PseudoHeaderMap(req *http.Request) map[string]string {
	out := map[string]string{
		":method":    req.Method,
		":scheme":    req.URL.Scheme,
		":authority": req.URL.Host,
		":path":      req.URL.RequestURI(),
	}
	for name, vals := range req.Header {
		if len(vals) > 0 {
			out[strings.ToLower(name)] = vals[0]
		}
	}
	return out
}
