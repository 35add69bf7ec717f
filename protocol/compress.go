package protocol

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// brotliReadCloser pairs a brotli.Reader (which has no Close method) with
// the underlying body's Close, so decoding never leaks the socket/buffer
// the original body held.
type brotliReadCloser struct {
	io.Reader
	closeFn func() error
}

func (r *brotliReadCloser) Close() error { return r.closeFn() }

// DefaultAcceptEncoding is the Accept-Encoding value strategies adorn a
// request with when the caller hasn't set one and compression is
// enabled, in the order decoders below are willing to unwrap them.
const DefaultAcceptEncoding = "gzip, deflate, br"

// DecodeContentEncoding unwraps body through each encoding named in a
// comma-separated Content-Encoding value. The header lists codings in the
// order they were applied (RFC 7231 §3.1.2.2), so decoding unwraps them
// from the last listed to the first.
func DecodeContentEncoding(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	if encoding == "" {
		return body, nil
	}
	encodings := strings.Split(encoding, ",")
	for i := len(encodings) - 1; i >= 0; i-- {
		encode := encodings[i]
		switch strings.TrimSpace(encode) {
		case "gzip":
			r, err := gzip.NewReader(body)
			if err != nil {
				return nil, fmt.Errorf("gzip decode: %w", err)
			}
			body = r
		case "deflate":
			r, err := zlib.NewReader(body)
			if err != nil {
				return nil, fmt.Errorf("deflate decode: %w", err)
			}
			body = r
		case "br":
			body = &brotliReadCloser{Reader: brotli.NewReader(body), closeFn: body.Close}
		case "":
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", encode)
		}
	}
	return body, nil
}
