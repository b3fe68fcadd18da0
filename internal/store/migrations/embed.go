// Package migrations embeds the persistence gateway schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
