package db

import (
	"embed"
	"fmt"
	"io/fs"
)

// Migration files ship inside the binary so deployments never depend on a
// migrations directory being present on disk.
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// getMigrationsFS returns the embedded migrations as a filesystem rooted at
// the migration files themselves.
func getMigrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	return sub, nil
}

// MigrationsFS exposes the embedded migrations for callers outside this
// package, e.g. tests that assert against the shipped schema.
func MigrationsFS() (fs.FS, error) {
	return getMigrationsFS()
}
