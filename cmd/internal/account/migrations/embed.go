// Package migrations embeds the account schema migrations (goose format).
package migrations

import "embed"

// FS holds the *.sql migrations at its root.
//
//go:embed *.sql
var FS embed.FS
