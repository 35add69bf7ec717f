// Package qpack adapts github.com/quic-go/qpack to the same codec contract
// as wire/hpack, adding the required-insert-count/base prefix QPACK
// prepends to every field section.
package qpack

import (
	"bytes"
	"fmt"

	"github.com/quic-go/qpack"
)

// Codec encodes and decodes HTTP/3 header blocks. Like wire/hpack.Codec, a
// Codec is not safe for concurrent use.
type Codec struct {
	enc    *qpack.Encoder
	encBuf bytes.Buffer
	dec    *qpack.Decoder
}

// New returns a Codec. This module never populates a dynamic table on
// either side (H3 strategy operates stateless-encoder style), so every
// encoded section has required-insert-count=0 and base=0, and the decoder
// only accepts required-insert-count=0.
func New() *Codec {
	c := &Codec{}
	c.enc = qpack.NewEncoder(&c.encBuf)
	c.dec = qpack.NewDecoder(nil)
	return c
}

// SerializeHeaders encodes headers into a QPACK field section prefixed
// with the encoder stream's required-insert-count/base (both zero, since
// this codec runs with no dynamic table).
func (c *Codec) SerializeHeaders(headers map[string]string) ([]byte, error) {
	c.encBuf.Reset()
	for _, k := range hpackPseudoOrder(headers) {
		if err := c.enc.WriteField(qpack.HeaderField{Name: k, Value: headers[k]}); err != nil {
			return nil, fmt.Errorf("qpack encode %s: %w", k, err)
		}
	}
	out := make([]byte, c.encBuf.Len())
	copy(out, c.encBuf.Bytes())
	return out, nil
}

// ParseHeaders decodes a QPACK field section. requiredInsertCount must be
// 0 when this codec's encoder never inserts into the dynamic table;
// anything else is a protocol error since there is no dynamic table to
// satisfy the dependency against.
func (c *Codec) ParseHeaders(block []byte, requiredInsertCount int) (map[string]string, error) {
	if requiredInsertCount != 0 {
		return nil, fmt.Errorf("qpack decode: required insert count %d unsupported without dynamic table", requiredInsertCount)
	}
	fields, err := c.dec.DecodeFull(block)
	if err != nil {
		return nil, fmt.Errorf("qpack decode: %w", err)
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value
	}
	return out, nil
}

var pseudoOrder = []string{":method", ":scheme", ":authority", ":path"}

// hpackPseudoOrder returns headers' keys ordered with pseudo-headers first
// (in pseudoOrder), then the remaining regular headers in map order.
func hpackPseudoOrder(headers map[string]string) []string {
	seen := make(map[string]bool, len(headers))
	out := make([]string, 0, len(headers))
	for _, k := range pseudoOrder {
		if _, ok := headers[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	for k := range headers {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}
