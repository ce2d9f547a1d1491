package auth

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the SQL migrations for the auth tables so embedders
// can feed them to their migration runner.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
