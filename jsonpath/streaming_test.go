package jsonpath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idItem struct {
	ID string `json:"id"`
}

type priceItem struct {
	Price float64 `json:"price"`
}

type nameItem struct {
	Name string `json:"name"`
}

// feedInChunks splits payload into n pieces and feeds them one at a time,
// collecting every Match returned across the whole sequence plus Finish.
func feedInChunks[T any](t *testing.T, ev *StreamingEvaluator[T], payload []byte, n int) []Match[T] {
	t.Helper()
	var all []Match[T]
	if n <= 0 {
		n = 1
	}
	chunkSize := (len(payload) + n - 1) / n
	for i := 0; i < len(payload); i += chunkSize {
		end := i + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		matches, err := ev.Feed(payload[i:end])
		require.NoError(t, err)
		all = append(all, matches...)
	}
	final, err := ev.Finish()
	require.NoError(t, err)
	all = append(all, final...)
	return all
}

func TestStreamingArrayWildcardScenario(t *testing.T) {
	expr, err := Compile("$.data[*]")
	require.NoError(t, err)
	payload := []byte(`{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)

	for _, chunks := range []int{1, 2, 5, len(payload)} {
		ev := NewStreamingEvaluator(expr, JSONParser[idItem]())
		matches := feedInChunks(t, ev, payload, chunks)
		require.Len(t, matches, 3, "chunking into %d pieces", chunks)
		for _, m := range matches {
			require.False(t, m.IsError(), m.ErrorMessage())
		}
		assert.Equal(t, "a", matches[0].Value.ID)
		assert.Equal(t, "b", matches[1].Value.ID)
		assert.Equal(t, "c", matches[2].Value.ID)
	}
}

func TestStreamingFilterScenario(t *testing.T) {
	expr, err := Compile("$.books[?@.price < 10]")
	require.NoError(t, err)
	payload := []byte(`{"books":[{"price":8.95},{"price":12.99},{"price":19.95}]}`)

	ev := NewStreamingEvaluator(expr, JSONParser[priceItem]())
	matches := feedInChunks(t, ev, payload, 3)
	require.Len(t, matches, 1)
	assert.Equal(t, 8.95, matches[0].Value.Price)
}

func TestStreamingFilterLengthFunctionScenario(t *testing.T) {
	expr, err := Compile("$.items[?length(@.name) > 5]")
	require.NoError(t, err)
	payload := []byte(`{"items":[{"name":"short"},{"name":"medium_name"}]}`)

	ev := NewStreamingEvaluator(expr, JSONParser[nameItem]())
	matches := feedInChunks(t, ev, payload, 4)
	require.Len(t, matches, 1)
	assert.Equal(t, "medium_name", matches[0].Value.Name)
}

func TestStreamingAndMaterializedAgree(t *testing.T) {
	cases := []struct {
		query   string
		payload string
	}{
		{"$.data[*]", `{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`},
		{"$.books[?@.price < 10]", `{"books":[{"price":8.95},{"price":12.99},{"price":19.95}]}`},
		{"$.items[?length(@.name) > 5]", `{"items":[{"name":"short"},{"name":"medium_name"}]}`},
		{"$.items[1:3]", `{"items":[1,2,3,4,5]}`},
	}

	for _, c := range cases {
		expr, err := Compile(c.query)
		require.NoError(t, err)

		var doc any
		require.NoError(t, json.Unmarshal([]byte(c.payload), &doc))
		wantNodes := Evaluate(expr, doc)
		want := make([]any, len(wantNodes))
		for i, n := range wantNodes {
			want[i] = n.Value
		}

		ev := NewStreamingEvaluator(expr, JSONParser[any]())
		matches := feedInChunks(t, ev, []byte(c.payload), 3)
		got := make([]any, 0, len(matches))
		for _, m := range matches {
			require.False(t, m.IsError(), m.ErrorMessage())
			got = append(got, m.Value)
		}

		assert.Equal(t, want, got, "query %q", c.query)
	}
}

func TestStreamingBadChunkDoesNotAbortStream(t *testing.T) {
	expr, err := Compile("$.items[*]")
	require.NoError(t, err)
	payload := []byte(`{"items":[{"id":"a"},{"id":123},{"id":"c"}]}`)

	ev := NewStreamingEvaluator(expr, JSONParser[idItem]())
	matches := feedInChunks(t, ev, payload, 1)
	require.Len(t, matches, 3)
	assert.False(t, matches[0].IsError())
	assert.True(t, matches[1].IsError(), "id:123 cannot decode into a string field")
	assert.False(t, matches[2].IsError())
}

func TestStreamingCancelStopsEmission(t *testing.T) {
	expr, err := Compile("$.data[*]")
	require.NoError(t, err)
	ev := NewStreamingEvaluator(expr, JSONParser[idItem]())
	ev.Cancel()
	matches, err := ev.Feed([]byte(`{"data":[{"id":"a"}]}`))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStreamingBareRootEmitsWholeDocumentOnce(t *testing.T) {
	expr, err := Compile("$")
	require.NoError(t, err)
	ev := NewStreamingEvaluator(expr, JSONParser[map[string]any]())
	matches := feedInChunks(t, ev, []byte(`{"a":1}`), 3)
	require.Len(t, matches, 1)
	assert.Equal(t, float64(1), matches[0].Value["a"])
}
