// Package hpack adapts golang.org/x/net/http2/hpack to a small codec
// contract: parse_headers(bytes) -> map, serialize_headers(map) -> bytes,
// backed by a per-connection dynamic table.
package hpack

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/net/http2/hpack"
)

// DefaultDynamicTableSize is HTTP/2's spec default (4096 octets).
const DefaultDynamicTableSize = 4096

// Codec encodes and decodes HTTP/2 header blocks over a shared,
// implementation-local dynamic table. A Codec is not safe for concurrent
// use; callers keep one per connection.
type Codec struct {
	enc *hpack.Encoder
	dec *hpack.Decoder
	buf bytes.Buffer
}

// New returns a Codec with a dynamic table bounded at tableSize bytes.
// tableSize <= 0 uses DefaultDynamicTableSize.
func New(tableSize uint32) *Codec {
	if tableSize == 0 {
		tableSize = DefaultDynamicTableSize
	}
	c := &Codec{}
	c.enc = hpack.NewEncoder(&c.buf)
	c.enc.SetMaxDynamicTableSize(tableSize)
	c.dec = hpack.NewDecoder(tableSize, nil)
	return c
}

// PseudoOrder is the order pseudo-headers are encoded in, ahead of regular
// headers.
var PseudoOrder = []string{":method", ":scheme", ":authority", ":path"}

// SerializeHeaders encodes name/value pairs into an HPACK header block.
// Pseudo-headers (keys starting with ':') are placed first, in
// PseudoOrder, followed by regular headers sorted lexicographically for
// determinism.
func (c *Codec) SerializeHeaders(headers map[string]string) ([]byte, error) {
	c.buf.Reset()

	pseudo := make(map[string]string)
	var regularKeys []string
	regular := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(k) > 0 && k[0] == ':' {
			pseudo[k] = v
		} else {
			regular[k] = v
			regularKeys = append(regularKeys, k)
		}
	}
	sort.Strings(regularKeys)

	for _, k := range PseudoOrder {
		if v, ok := pseudo[k]; ok {
			if err := c.enc.WriteField(hpack.HeaderField{Name: k, Value: v}); err != nil {
				return nil, fmt.Errorf("hpack encode %s: %w", k, err)
			}
		}
	}
	for k := range pseudo {
		if !contains(PseudoOrder, k) {
			if err := c.enc.WriteField(hpack.HeaderField{Name: k, Value: pseudo[k]}); err != nil {
				return nil, fmt.Errorf("hpack encode %s: %w", k, err)
			}
		}
	}
	for _, k := range regularKeys {
		if err := c.enc.WriteField(hpack.HeaderField{Name: k, Value: regular[k]}); err != nil {
			return nil, fmt.Errorf("hpack encode %s: %w", k, err)
		}
	}

	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}

// ParseHeaders decodes an HPACK header block into a name/value map. Header
// names are lowercased per HTTP/2 wire requirements. Truncated integer
// continuations or malformed literals surface as an error the caller
// attaches to the stream as a protocol error.
func (c *Codec) ParseHeaders(block []byte) (map[string]string, error) {
	out := make(map[string]string)
	c.dec.SetEmitFunc(func(f hpack.HeaderField) {
		out[f.Name] = f.Value
	})
	if _, err := c.dec.Write(block); err != nil {
		return nil, fmt.Errorf("hpack decode: %w", err)
	}
	if err := c.dec.Close(); err != nil {
		return nil, fmt.Errorf("hpack decode close: %w", err)
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
