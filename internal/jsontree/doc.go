// Package jsontree models controller JSON documents as ordered trees and
// walks them with a depth-windowed visitor.
//
// Documents are decoded with key order preserved, because the order in which
// sibling fields are visited decides the order channels and states appear in
// the object store:
//
//	root, err := jsontree.Parse(body)
//	if err != nil {
//	    return err
//	}
//	jsontree.Traverse(root, "default", 1, 2, func(v jsontree.Visit) bool {
//	    fmt.Println(v.Depth, v.Path)
//	    return true
//	})
//
// # Depth
//
// The argument passed to Traverse is depth 1, its children depth 2 and so on.
// A maxDepth of 0 means unbounded. Arrays do not add a path segment; object
// fields append ".<key>".
//
// # Arrays
//
// Array elements are walked only while they are objects, arrays or null. The
// first string, number or boolean element ends the walk over that array, so
// an array of scalars is offered as a single node and never element by element.
//
// # Thread Safety
//
// Nodes are immutable after Parse and may be shared between goroutines.
package jsontree
