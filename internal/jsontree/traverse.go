package jsontree

// Visit is one node offered to a VisitFunc.
type Visit struct {
	// Path is the dotted path accumulated from the prefix given to Traverse.
	Path string

	// Value is the node itself.
	Value Node

	// Depth is 1 for the root passed to Traverse.
	Depth int
}

// VisitFunc receives nodes inside the depth window. Returning false for an
// object or array skips its children; the return value is ignored for scalars.
type VisitFunc func(v Visit) bool

// frame is one pending node on the traversal work-list.
type frame struct {
	node  Node
	path  string
	depth int
}

// Traverse walks root depth-first in document order and calls visit for every
// node whose depth lies in [minDepth, maxDepth]. A maxDepth of 0 is unbounded.
//
// Parents are always offered before their children. Nodes below maxDepth are
// never reached, so the window also bounds the walk's cost. The walk uses an
// explicit stack rather than recursion.
func Traverse(root Node, prefix string, minDepth, maxDepth int, visit VisitFunc) {
	if visit == nil {
		return
	}

	stack := []frame{{node: root, path: prefix, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if maxDepth != 0 && f.depth > maxDepth {
			continue
		}
		offered := minDepth <= f.depth
		descend := maxDepth == 0 || f.depth < maxDepth

		switch v := f.node.(type) {
		case []Node:
			if offered && !visit(Visit{Path: f.path, Value: v, Depth: f.depth}) {
				continue
			}
			if !descend {
				continue
			}
			// Push in reverse so elements pop in document order.
			for i := walkableElements(v) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: v[i], path: f.path, depth: f.depth + 1})
			}

		case *Object:
			if offered && !visit(Visit{Path: f.path, Value: v, Depth: f.depth}) {
				continue
			}
			if !descend {
				continue
			}
			for i := len(v.keys) - 1; i >= 0; i-- {
				key := v.keys[i]
				stack = append(stack, frame{node: v.values[key], path: f.path + "." + key, depth: f.depth + 1})
			}

		default:
			if offered {
				visit(Visit{Path: f.path, Value: v, Depth: f.depth})
			}
		}
	}
}

// walkableElements returns how many leading elements of arr are walked: all
// elements up to, not including, the first string, number or boolean.
//
// Null elements do not stop the walk. This mirrors the controller adapter this
// bridge replaces and is kept for path compatibility.
func walkableElements(arr []Node) int {
	for i, el := range arr {
		if IsScalar(el) {
			return i
		}
	}
	return len(arr)
}
