// Package migrations embeds the SQL schema into the binary so the worker
// can bootstrap its tables without the files being present on disk.
package migrations

import _ "embed"

//go:embed schema.sql
var Schema string
