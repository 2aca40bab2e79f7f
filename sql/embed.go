// Package sql embeds the SQLite schema migrations.
package sql

import "embed"

//go:embed schema/*.sql
var MigrationsFS embed.FS
