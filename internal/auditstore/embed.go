package auditstore

import "embed"

// MigrationFS embeds every SQL migration so the compiled binary never
// needs migration files present on disk at runtime.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
