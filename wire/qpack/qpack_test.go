package qpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	enc := New()
	dec := New()

	headers := map[string]string{
		":method":    "GET",
		":scheme":    "https",
		":authority": "example.com",
		":path":      "/",
		"accept":     "application/json",
	}

	block, err := enc.SerializeHeaders(headers)
	require.NoError(t, err)

	got, err := dec.ParseHeaders(block, 0)
	require.NoError(t, err)
	assert.Equal(t, headers, got)
}

func TestParseHeadersRejectsNonZeroRequiredInsertCount(t *testing.T) {
	dec := New()
	_, err := dec.ParseHeaders(nil, 1)
	assert.Error(t, err)
}
