// Package multipart serializes a request's multipart/form-data body: a
// list of named fields (optionally carrying a filename and content type)
// into a single byte buffer plus the Content-Type header value the
// caller must attach, per §6.1 of the expanded specification. Field
// order is preserved on the wire.
package multipart

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Field is one part of a multipart/form-data body.
type Field struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// boundaryPrefix is prepended to every generated boundary token, purely
// for readability when a capture is inspected by hand; the uuid suffix
// is what actually guarantees the token can't collide with part data.
const boundaryPrefix = "streamhttp-"

// NewBoundary returns a fresh boundary token with enough entropy that a
// collision with payload bytes is astronomically unlikely.
func NewBoundary() string {
	return boundaryPrefix + uuid.New().String()
}

// Serialize encodes fields as a multipart/form-data body, generating a
// fresh boundary token. It returns the body bytes and the full
// Content-Type header value (including the boundary parameter) the
// caller must set on the request.
func Serialize(fields []Field) (body []byte, contentType string, err error) {
	boundary := NewBoundary()
	buf, err := SerializeWithBoundary(fields, boundary)
	if err != nil {
		return nil, "", err
	}
	return buf, "multipart/form-data; boundary=" + boundary, nil
}

// SerializeWithBoundary is Serialize with a caller-supplied boundary
// token, mainly for tests that need a deterministic Content-Type.
func SerializeWithBoundary(fields []Field, boundary string) ([]byte, error) {
	if boundary == "" {
		return nil, fmt.Errorf("multipart: empty boundary")
	}
	var buf bytes.Buffer
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("multipart: field missing name")
		}
		buf.WriteString("--")
		buf.WriteString(boundary)
		buf.WriteString("\r\n")

		buf.WriteString("Content-Disposition: form-data; name=")
		buf.WriteString(quoteParam(f.Name))
		if f.Filename != "" {
			buf.WriteString("; filename=")
			buf.WriteString(quoteParam(f.Filename))
		}
		buf.WriteString("\r\n")

		if f.ContentType != "" {
			buf.WriteString("Content-Type: ")
			buf.WriteString(f.ContentType)
			buf.WriteString("\r\n")
		}
		buf.WriteString("\r\n")
		buf.Write(f.Data)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--")
	buf.WriteString(boundary)
	buf.WriteString("--\r\n")
	return buf.Bytes(), nil
}

// quoteParam quotes a Content-Disposition parameter value the way
// net/textproto's MIME writer does, escaping backslashes and quotes.
func quoteParam(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return `"` + s + `"`
	}
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + replacer.Replace(s) + `"`
}
