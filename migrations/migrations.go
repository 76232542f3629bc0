// Package migrations bundles the schema migration files into the binary so
// a single policymatch executable can bring any empty database up to the
// current schema without external files.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
