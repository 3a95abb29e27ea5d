package unifi

import "github.com/nerrad567/gray-logic-unifi/internal/jsontree"

// identifier extracts the path segment a node is filed under.
// It reports false when the node carries no usable identifier.
type identifier func(n jsontree.Node) (string, bool)

// fieldIdentifier names a node by one of its scalar fields.
func fieldIdentifier(key string) identifier {
	return func(n jsontree.Node) (string, bool) {
		return jsontree.StringField(n, key)
	}
}

// Identifiers used by the projection drivers.
var (
	// bySubsystem files site health entries ("wlan", "lan", "www").
	bySubsystem = fieldIdentifier("subsystem")

	// byKey files sysinfo sub-records.
	byKey = fieldIdentifier("key")

	// byMAC files clients and access devices.
	byMAC = fieldIdentifier("mac")

	// byName files radio and port table rows.
	byName = fieldIdentifier("name")
)

// rebase returns <parent>.<id> when n has an identifier, otherwise parent.
func rebase(parent string, n jsontree.Node, id identifier) string {
	seg, ok := id(n)
	if !ok {
		return parent
	}
	return parent + "." + seg
}

// describe returns the text of field key on n, or "" when absent.
func describe(n jsontree.Node, key string) string {
	s, _ := jsontree.StringField(n, key)
	return s
}

// isObjectLike reports whether n is an object, an array or null.
func isObjectLike(n jsontree.Node) bool {
	return n == nil || jsontree.IsContainer(n)
}
