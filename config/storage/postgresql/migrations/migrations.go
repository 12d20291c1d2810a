// Package migrations embeds the task archive schema migrations.
package migrations

import "embed"

//go:embed *.sql
var MigrationsFS embed.FS
