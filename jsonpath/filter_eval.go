package jsonpath

import (
	"math"
	"regexp"
	"sort"
	"sync"
	"unicode/utf8"
)

// EvalContext is the context a filter expression is evaluated against:
// $ is the document root, @ is the current candidate node. Depth/Index/
// Path/Recursive carry the candidate's position (the materialized
// evaluator fills Depth and Path); the filter grammar has no syntax that
// reads them, so no filter expression can test these fields.
type EvalContext struct {
	Root      any
	Current   any
	Depth     int
	Index     int
	Path      string
	Recursive bool
}

// present wraps a value together with whether the property/path actually
// existed, distinguishing "absent" from "explicit null".
type present struct {
	value  any
	exists bool
}

// EvalFilter evaluates a compiled FilterExpr against ctx, returning a
// boolean with short-circuiting logical semantics.
func EvalFilter(e *FilterExpr, ctx EvalContext) bool {
	v := evalNode(e, ctx)
	switch t := v.(type) {
	case bool:
		return t
	case present:
		return t.exists && !isNullOrFalseLike(t.value)
	default:
		return false
	}
}

func isNullOrFalseLike(v any) bool { return v == nil }

// evalNode evaluates e, returning a bool (comparison/logical results), a
// present (existence test results), or a scalar (literal/function Value
// results).
func evalNode(e *FilterExpr, ctx EvalContext) any {
	switch e.Kind {
	case FilterLogical:
		switch e.LogicalOp {
		case OpAnd:
			if !EvalFilter(e.Left, ctx) {
				return false
			}
			return EvalFilter(e.Right, ctx)
		case OpOr:
			if EvalFilter(e.Left, ctx) {
				return true
			}
			return EvalFilter(e.Right, ctx)
		}
		return false
	case FilterComparison:
		lv := resolveValue(e.Left, ctx)
		rv := resolveValue(e.Right, ctx)
		return compare(lv, rv, e.CompareOp)
	case FilterFunction:
		return evalFunction(e, ctx)
	case FilterLiteral:
		return literalValue(e)
	case FilterCurrentPath:
		return navigate(ctx.Current, e.Path)
	case FilterRootPath:
		return navigate(ctx.Root, e.Path)
	default:
		return nil
	}
}

// resolveValue unwraps a node into a plain scalar/slice/map for
// comparison, treating an absent existence-test as nil.
func resolveValue(e *FilterExpr, ctx EvalContext) any {
	v := evalNode(e, ctx)
	if p, ok := v.(present); ok {
		if !p.exists {
			return nil
		}
		return p.value
	}
	return v
}

func literalValue(e *FilterExpr) any {
	switch e.LitKind {
	case LiteralString:
		return e.LitString
	case LiteralNumber:
		return e.LitNumber
	case LiteralBool:
		return e.LitBool
	default:
		return nil
	}
}

// navigate walks path segments (child-name / index only — filters only
// chain simple accessors) from root, returning a present marking whether
// the path resolved.
func navigate(root any, path []Selector) present {
	cur := root
	for _, seg := range path {
		switch seg.Kind {
		case SelectorChild:
			m, ok := cur.(map[string]any)
			if !ok {
				return present{}
			}
			v, ok := m[seg.Name]
			if !ok {
				return present{}
			}
			cur = v
		case SelectorIndex:
			arr, ok := cur.([]any)
			if !ok {
				return present{}
			}
			idx := seg.Index
			if seg.FromEnd || idx < 0 {
				idx = len(arr) + idx
			}
			if idx < 0 || idx >= len(arr) {
				return present{}
			}
			cur = arr[idx]
		default:
			return present{}
		}
	}
	return present{value: cur, exists: true}
}

// compare implements the equality/ordering rules: IEEE 754 total order for
// numbers (NaN never equal/ordered), byte-wise string comparison after
// escape resolution (already resolved at parse time), cross-type numeric
// equality, and null==null.
func compare(l, r any, op CompareOp) bool {
	switch op {
	case OpEq:
		return equal(l, r)
	case OpNe:
		return !equal(l, r)
	case OpLt, OpLe, OpGt, OpGe:
		lf, lok := asFloat(l)
		rf, rok := asFloat(r)
		if lok && rok {
			if math.IsNaN(lf) || math.IsNaN(rf) {
				return false
			}
			switch op {
			case OpLt:
				return lf < rf
			case OpLe:
				return lf <= rf
			case OpGt:
				return lf > rf
			case OpGe:
				return lf >= rf
			}
		}
		ls, lsok := l.(string)
		rs, rsok := r.(string)
		if lsok && rsok {
			switch op {
			case OpLt:
				return ls < rs
			case OpLe:
				return ls <= rs
			case OpGt:
				return ls > rs
			case OpGe:
				return ls >= rs
			}
		}
		return false
	}
	return false
}

func equal(l, r any) bool {
	if l == nil && r == nil {
		return true
	}
	if l == nil || r == nil {
		return false
	}
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		if math.IsNaN(lf) || math.IsNaN(rf) {
			return false
		}
		return lf == rf
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return ls == rs
		}
		return false
	}
	if lb, ok := l.(bool); ok {
		if rb, ok := r.(bool); ok {
			return lb == rb
		}
		return false
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func evalFunction(e *FilterExpr, ctx EvalContext) any {
	switch e.FuncName {
	case "length":
		v := resolveValue(e.Args[0], ctx)
		return lengthOf(v)
	case "count":
		nodes := resolveNodes(e.Args[0], ctx)
		return float64(len(nodes))
	case "value":
		nodes := resolveNodes(e.Args[0], ctx)
		if len(nodes) == 1 {
			return nodes[0]
		}
		return nil
	case "match":
		return regexEval(e, ctx, true)
	case "search":
		return regexEval(e, ctx, false)
	default:
		return nil
	}
}

// lengthOf implements length(): Unicode scalar count for strings, element
// count for arrays, member count for objects, null otherwise.
func lengthOf(v any) any {
	switch t := v.(type) {
	case string:
		return float64(utf8.RuneCountInString(t))
	case []any:
		return float64(len(t))
	case map[string]any:
		return float64(len(t))
	default:
		return nil
	}
}

// resolveNodes evaluates an argument expected to denote a nodelist: a path
// expression (@/$) expands to the zero-or-one node it resolves to, a
// literal is treated as a single-node set for the purposes of count().
func resolveNodes(e *FilterExpr, ctx EvalContext) []any {
	switch e.Kind {
	case FilterCurrentPath, FilterRootPath:
		p := evalNode(e, ctx).(present)
		if !p.exists {
			return nil
		}
		return []any{p.value}
	default:
		v := resolveValue(e, ctx)
		if v == nil {
			return nil
		}
		return []any{v}
	}
}

var regexCache sync.Map // string -> *regexp.Regexp

func regexCacheGet(key string) (*regexp.Regexp, bool) {
	v, ok := regexCache.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*regexp.Regexp), true
}

func regexCacheSet(key string, re *regexp.Regexp) {
	regexCache.Store(key, re)
}

// regexEval implements match()/search(): match is an anchored full match,
// search is an unanchored substring match. Both return Logical.
func regexEval(e *FilterExpr, ctx EvalContext, anchored bool) bool {
	subject, ok := resolveValue(e.Args[0], ctx).(string)
	if !ok {
		return false
	}
	pattern, ok := resolveValue(e.Args[1], ctx).(string)
	if !ok {
		return false
	}
	re, err := compileRegex(pattern, anchored)
	if err != nil {
		return false
	}
	return re.MatchString(subject)
}

// compileRegex compiles pattern into Go's RE2-based regexp/syntax: linear
// time, no backreferences/lookaround — a safe subset by construction.
// Anchored compiles wrap the pattern in ^(?:...)$.
func compileRegex(pattern string, anchored bool) (*regexp.Regexp, error) {
	key := pattern
	if anchored {
		key = "^a:" + pattern
	} else {
		key = "^s:" + pattern
	}
	if v, ok := regexCacheGet(key); ok {
		return v, nil
	}
	effective := pattern
	if anchored {
		effective = "^(?:" + pattern + ")$"
	}
	re, err := regexp.Compile(effective)
	if err != nil {
		return nil, err
	}
	regexCacheSet(key, re)
	return re, nil
}

// sortPreserve sorts indices ascending in place and returns the same
// slice. Nothing in the package calls it; union evaluation keeps member
// order without sorting.
func sortPreserve(indices []int) []int {
	sort.Ints(indices)
	return indices
}
