// Package migrations embeds the SQL schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds the ordered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
