// Package migrations embeds the SQL schema and applies it with golang-migrate.
package migrations

import "embed"

// Files holds the numbered up/down migrations.
//
//go:embed *.sql
var Files embed.FS
