// Package migrations embeds the goose SQL migrations for the coordinator's
// regions/scan_cells/scan_meta schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
