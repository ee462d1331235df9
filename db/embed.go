// Package db embeds the schema migrations for each supported store driver.
package db

import "embed"

// Postgres holds the postgres migrations under postgres/.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds the sqlite migrations under sqlite/.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
