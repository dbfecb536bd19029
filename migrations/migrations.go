// Package migrations bundles the SQL schema migrations of chat-api.
package migrations

import "embed"

// FS holds every *.sql migration file.
//
//go:embed *.sql
var FS embed.FS
