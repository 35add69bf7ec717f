package jsonpath

// Node is one element of a JSONPath nodelist: the resolved value together
// with the path breadcrumb it was found at (used for the synthetic
// $path/$depth fields and for debugging).
type Node struct {
	Value any
	Path  string
	Depth int
}

// Evaluate runs expr against an already-parsed JSON document, for use
// when the full document is available up front rather than arriving in
// chunks. A root-only query ("$") always returns exactly one node, the
// document itself.
func Evaluate(expr *Expression, doc any) []Node {
	nodes := []Node{{Value: doc, Path: "$", Depth: 0}}
	for _, sel := range expr.Selectors {
		nodes = applySelector(sel, nodes, doc)
	}
	return nodes
}

func applySelector(sel Selector, in []Node, root any) []Node {
	switch sel.Kind {
	case SelectorRecursiveDescent:
		// To keep applySelector a pure per-selector function, recursive
		// descent is handled by expanding `in` (via collectDescendants) to
		// include every descendant node (object/array members at any depth)
		// before the following selector runs on that expanded set.
		var out []Node
		for _, n := range in {
			out = append(out, collectDescendants(n, root)...)
		}
		return out
	case SelectorChild:
		var out []Node
		for _, n := range in {
			m, ok := n.Value.(map[string]any)
			if !ok {
				continue
			}
			if v, ok := m[sel.Name]; ok {
				out = append(out, Node{Value: v, Path: n.Path + "." + sel.Name, Depth: n.Depth + 1})
			}
		}
		return out
	case SelectorWildcard:
		var out []Node
		for _, n := range in {
			out = append(out, wildcardChildren(n)...)
		}
		return out
	case SelectorIndex:
		var out []Node
		for _, n := range in {
			arr, ok := n.Value.([]any)
			if !ok {
				continue
			}
			idx := sel.Index
			if sel.FromEnd && idx >= 0 {
				idx = len(arr) - idx
			} else if idx < 0 {
				idx = len(arr) + idx
			}
			if idx < 0 || idx >= len(arr) {
				continue
			}
			out = append(out, Node{Value: arr[idx], Path: indexPath(n.Path, idx), Depth: n.Depth + 1})
		}
		return out
	case SelectorSlice:
		var out []Node
		for _, n := range in {
			arr, ok := n.Value.([]any)
			if !ok {
				continue
			}
			for _, idx := range sliceIndices(len(arr), sel) {
				out = append(out, Node{Value: arr[idx], Path: indexPath(n.Path, idx), Depth: n.Depth + 1})
			}
		}
		return out
	case SelectorUnion:
		var out []Node
		for _, member := range sel.Union {
			out = append(out, applySelector(member, in, root)...)
		}
		return out
	case SelectorFilter:
		var out []Node
		for _, n := range in {
			candidates := wildcardChildren(n)
			for _, c := range candidates {
				ctx := EvalContext{Root: root, Current: c.Value, Depth: c.Depth, Path: c.Path}
				if EvalFilter(sel.Filter, ctx) {
					out = append(out, c)
				}
			}
		}
		return out
	default:
		return in
	}
}

// wildcardChildren returns every immediate child of n.Value: object
// members (any iteration order collected then unused for indexing, so map
// order doesn't affect correctness) or array elements in order.
func wildcardChildren(n Node) []Node {
	switch v := n.Value.(type) {
	case map[string]any:
		out := make([]Node, 0, len(v))
		for k, val := range v {
			out = append(out, Node{Value: val, Path: n.Path + "." + k, Depth: n.Depth + 1})
		}
		return out
	case []any:
		out := make([]Node, 0, len(v))
		for i, val := range v {
			out = append(out, Node{Value: val, Path: indexPath(n.Path, i), Depth: n.Depth + 1})
		}
		return out
	default:
		return nil
	}
}

// collectDescendants performs the depth-first traversal recursive descent
// requires, including intermediate objects and arrays. It returns n itself
// plus every descendant, so the following selector (e.g. a child-name
// selector) can match at any depth including the origin.
func collectDescendants(n Node, root any) []Node {
	out := []Node{n}
	for _, child := range wildcardChildren(n) {
		out = append(out, collectDescendants(child, root)...)
	}
	return out
}

// sliceIndices implements Python-like slice semantics: start/end/step with
// negative-index and step-direction handling, empty on degenerate ranges.
// Splitting a slice at any point and concatenating the pieces reproduces
// the unsplit slice, because this follows the same normalization Python
// (and RFC 9535) define.
func sliceIndices(length int, sel Selector) []int {
	step := sel.Step
	if step == 0 {
		step = 1
	}

	normalize := func(i int) int {
		if i < 0 {
			i += length
		}
		return i
	}

	var start, end int
	if step > 0 {
		if sel.HasStart {
			start = clamp(normalize(sel.Start), 0, length)
		} else {
			start = 0
		}
		if sel.HasEnd {
			end = clamp(normalize(sel.End), 0, length)
		} else {
			end = length
		}
	} else {
		if sel.HasStart {
			start = clamp(normalize(sel.Start), -1, length-1)
		} else {
			start = length - 1
		}
		if sel.HasEnd {
			end = clamp(normalize(sel.End), -1, length-1)
		} else {
			end = -1
		}
	}

	var out []int
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > end; i += step {
			out = append(out, i)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func indexPath(parent string, idx int) string {
	return parent + "[" + itoa(idx) + "]"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
