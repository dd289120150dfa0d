// Package migrations embeds the goose schema migrations for the PostgreSQL
// token store.
package migrations

import "embed"

// FS holds the SQL migration files applied by PostgresStore.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
