// Package migrations embeds SQL migration files into the binary.
//
// Importing this package registers the object tree schema with the
// database package so Migrate can run without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
