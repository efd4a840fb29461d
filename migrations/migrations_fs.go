package migrations

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the credential schema for postgres and, under
// data/sql/migrations/sqlite, its sqlite variant.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}
