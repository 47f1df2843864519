package migrations

import "embed"

// FS contains embedded SQLite migrations for profiles storage.
//
//go:embed *.sql
var FS embed.FS
