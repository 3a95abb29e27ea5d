// Package database provides the SQLite connection that backs the bridge's
// object tree and state history.
//
// This package manages:
//   - The connection, with WAL mode so API reads run alongside sync writes
//   - Schema migrations embedded by the migrations package
//   - WAL checkpointing on shutdown
//
// The database file is created with 0600 permissions and every query uses
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql file ships with a matching .down.sql.
package database
