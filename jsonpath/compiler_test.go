package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRejectsNonRootExpression(t *testing.T) {
	_, err := Compile("data[*]")
	require.Error(t, err)
}

func TestCompileRejectsEmptyExpression(t *testing.T) {
	_, err := Compile("")
	require.Error(t, err)
}

func TestCompileBareRoot(t *testing.T) {
	expr, err := Compile("$")
	require.NoError(t, err)
	assert.Empty(t, expr.Selectors)
}

func TestCompileChildChainAndWildcard(t *testing.T) {
	expr, err := Compile("$.data[*]")
	require.NoError(t, err)
	require.Len(t, expr.Selectors, 2)
	assert.Equal(t, SelectorChild, expr.Selectors[0].Kind)
	assert.Equal(t, "data", expr.Selectors[0].Name)
	assert.Equal(t, SelectorWildcard, expr.Selectors[1].Kind)
	assert.True(t, expr.IsArrayStream)
}

func TestCompileBracketChildAndQuoted(t *testing.T) {
	expr, err := Compile(`$['a']["b c"]`)
	require.NoError(t, err)
	require.Len(t, expr.Selectors, 2)
	assert.Equal(t, "a", expr.Selectors[0].Name)
	assert.Equal(t, "b c", expr.Selectors[1].Name)
}

func TestCompileIndexAndNegativeIndex(t *testing.T) {
	expr, err := Compile("$.items[-1]")
	require.NoError(t, err)
	sel := expr.Selectors[1]
	assert.Equal(t, SelectorIndex, sel.Kind)
	assert.Equal(t, -1, sel.Index)
	assert.True(t, sel.FromEnd)
}

func TestCompileSlice(t *testing.T) {
	expr, err := Compile("$.items[1:5:2]")
	require.NoError(t, err)
	sel := expr.Selectors[1]
	assert.Equal(t, SelectorSlice, sel.Kind)
	assert.Equal(t, 1, sel.Start)
	assert.Equal(t, 5, sel.End)
	assert.Equal(t, 2, sel.Step)
}

func TestCompileUnion(t *testing.T) {
	expr, err := Compile("$.items[0,2,'name']")
	require.NoError(t, err)
	sel := expr.Selectors[1]
	require.Equal(t, SelectorUnion, sel.Kind)
	require.Len(t, sel.Union, 3)
}

func TestCompileRecursiveDescent(t *testing.T) {
	expr, err := Compile("$..name")
	require.NoError(t, err)
	require.Len(t, expr.Selectors, 2)
	assert.Equal(t, SelectorRecursiveDescent, expr.Selectors[0].Kind)
	assert.Equal(t, SelectorChild, expr.Selectors[1].Kind)
	assert.Equal(t, 0, expr.RecursiveDescentStart)
}

func TestCompileFilterExpression(t *testing.T) {
	expr, err := Compile("$.books[?@.price < 10]")
	require.NoError(t, err)
	sel := expr.Selectors[1]
	require.Equal(t, SelectorFilter, sel.Kind)
	require.NotNil(t, sel.Filter)
	assert.Equal(t, FilterComparison, sel.Filter.Kind)
	assert.Equal(t, OpLt, sel.Filter.CompareOp)
}

func TestCompileFunctionCallValidation(t *testing.T) {
	_, err := Compile("$.items[?length(@.name, @.other) > 5]")
	assert.Error(t, err, "length() takes exactly one argument")

	_, err = Compile("$.items[?nosuchfunction(@.name)]")
	assert.Error(t, err)
}

func TestComplexityScoreSumsSelectorWeights(t *testing.T) {
	expr, err := Compile("$..*")
	require.NoError(t, err)
	assert.Equal(t, uint32(60), expr.ComplexityScore) // ".." (50) + "*" (10)
}

func TestUnicodeEscapeInQuotedName(t *testing.T) {
	expr, err := Compile("$['caf\\u00e9']")
	require.NoError(t, err)
	assert.Equal(t, "café", expr.Selectors[0].Name)
}
