package migrations

import "embed"

// FS contains embedded SQLite migrations for mentorship storage.
//
//go:embed *.sql
var FS embed.FS
