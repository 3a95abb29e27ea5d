// Package objectstore persists the bridge's object tree: channels (grouping
// nodes, like directories) and states (leaf values with an acknowledgement flag).
//
// Object IDs are dotted paths such as "default.devices.f0:9f:c2:00:00:01.uptime".
// Objects are created once and never overwritten by the bridge; state values
// are upserted. Nothing here deletes objects.
//
// Two implementations are provided:
//
//   - SQLiteStore: the production store, backed by the schema in migrations/
//   - MemoryStore: an in-process store for tests and dry runs
//
// Usage:
//
//	store := objectstore.NewSQLiteStore(db.DB)
//	created, err := store.SetObjectNotExists(ctx, objectstore.Object{
//	    ID:     "default",
//	    Type:   objectstore.TypeChannel,
//	    Common: objectstore.Common{Name: "Site Home"},
//	})
//
// Thread Safety: both implementations are safe for concurrent use.
package objectstore
