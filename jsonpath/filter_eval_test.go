package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalFilterExpr(t *testing.T, src string, current any) bool {
	t.Helper()
	expr, err := Compile("$[?" + src + "]")
	require.NoError(t, err)
	sel := expr.Selectors[0]
	require.Equal(t, SelectorFilter, sel.Kind)
	return EvalFilter(sel.Filter, EvalContext{Current: current})
}

func TestFilterComparisonOperators(t *testing.T) {
	doc := map[string]any{"price": 8.95}
	assert.True(t, evalFilterExpr(t, "@.price < 10", doc))
	assert.False(t, evalFilterExpr(t, "@.price > 10", doc))
	assert.True(t, evalFilterExpr(t, "@.price == 8.95", doc))
	assert.True(t, evalFilterExpr(t, "@.price != 10", doc))
	assert.True(t, evalFilterExpr(t, "@.price <= 8.95", doc))
	assert.True(t, evalFilterExpr(t, "@.price >= 8.95", doc))
}

func TestFilterLogicalShortCircuit(t *testing.T) {
	doc := map[string]any{"a": 1.0, "b": 2.0}
	assert.True(t, evalFilterExpr(t, "@.a == 1 && @.b == 2", doc))
	assert.False(t, evalFilterExpr(t, "@.a == 1 && @.b == 99", doc))
	assert.True(t, evalFilterExpr(t, "@.a == 99 || @.b == 2", doc))
	assert.False(t, evalFilterExpr(t, "@.a == 99 || @.b == 99", doc))
}

func TestFilterExistenceTest(t *testing.T) {
	withKey := map[string]any{"name": "x"}
	withoutKey := map[string]any{"other": "x"}
	withNull := map[string]any{"name": nil}

	assert.True(t, evalFilterExpr(t, "@.name", withKey))
	assert.False(t, evalFilterExpr(t, "@.name", withoutKey))
	assert.False(t, evalFilterExpr(t, "@.name", withNull))
}

func TestFilterLengthFunction(t *testing.T) {
	doc := map[string]any{"name": "medium_name"}
	assert.True(t, evalFilterExpr(t, "length(@.name) > 5", doc))
	assert.False(t, evalFilterExpr(t, "length(@.name) > 50", doc))
}

func TestFilterLengthOnArrayAndObject(t *testing.T) {
	arrDoc := map[string]any{"items": []any{1.0, 2.0, 3.0}}
	assert.True(t, evalFilterExpr(t, "length(@.items) == 3", arrDoc))

	objDoc := map[string]any{"obj": map[string]any{"a": 1.0, "b": 2.0}}
	assert.True(t, evalFilterExpr(t, "length(@.obj) == 2", objDoc))
}

func TestFilterMatchIsAnchored(t *testing.T) {
	doc := map[string]any{"s": "hello world"}
	assert.False(t, evalFilterExpr(t, `match(@.s, "hello")`, doc), "match requires a full match")
	assert.True(t, evalFilterExpr(t, `match(@.s, "hello world")`, doc))
}

func TestFilterSearchIsUnanchored(t *testing.T) {
	doc := map[string]any{"s": "hello world"}
	assert.True(t, evalFilterExpr(t, `search(@.s, "wor")`, doc))
	assert.False(t, evalFilterExpr(t, `search(@.s, "xyz")`, doc))
}

func TestFilterNullEquality(t *testing.T) {
	doc := map[string]any{"a": nil}
	assert.True(t, evalFilterExpr(t, "@.a == null", doc))
}

func TestCompileRegexCachesByPatternAndAnchoring(t *testing.T) {
	re, err := compileRegex("a", false)
	require.NoError(t, err)
	re2, err := compileRegex("a", false)
	require.NoError(t, err)
	assert.Same(t, re, re2)

	anchored, err := compileRegex("a", true)
	require.NoError(t, err)
	assert.NotSame(t, re, anchored)
}
