package db

import (
	"io/fs"
	"path/filepath"
	"testing"
)

func setupMigrateTest(t *testing.T) (*DB, fs.FS) {
	t.Helper()
	database, err := OpenDB(filepath.Join(t.TempDir(), "migrate_test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("Failed to get migrations FS: %v", err)
	}
	return database, migrationsFS
}

func TestMigrateUpDown(t *testing.T) {
	database, migrationsFS := setupMigrateTest(t)

	// Fresh database: no version yet.
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("Expected version 0 clean on fresh database, got %d dirty=%v", version, dirty)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get latest version: %v", err)
	}
	if latest < 2 {
		t.Fatalf("Expected at least 2 migrations, got %d", latest)
	}

	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("Failed to migrate up: %v", err)
	}
	version, dirty, err = database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != latest || dirty {
		t.Errorf("Expected version %d clean after up, got %d dirty=%v", latest, version, dirty)
	}

	// Up again is a no-op.
	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Errorf("Migrate up at latest should be a no-op, got %v", err)
	}

	// Down one step.
	if err := database.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("Failed to migrate down: %v", err)
	}
	version, _, err = database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != latest-1 {
		t.Errorf("Expected version %d after down, got %d", latest-1, version)
	}
}

func TestMigrateDownRemovesSchema(t *testing.T) {
	database, migrationsFS := setupMigrateTest(t)

	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("Failed to migrate up: %v", err)
	}
	if !tableExists(t, database, "cameras") {
		t.Fatal("cameras table missing after up")
	}
	if !columnExists(t, database, "alerts", "resolved_at_ns") {
		t.Fatal("alerts.resolved_at_ns missing after up")
	}

	// Rolling back version 2 drops the cameras table and the resolution column.
	if err := database.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("Failed to migrate down: %v", err)
	}
	if tableExists(t, database, "cameras") {
		t.Error("cameras table still present after down")
	}
	if columnExists(t, database, "alerts", "resolved_at_ns") {
		t.Error("alerts.resolved_at_ns still present after down")
	}
	if !tableExists(t, database, "frame_metrics") {
		t.Error("frame_metrics should survive rolling back to version 1")
	}
}

func TestMigrateTo(t *testing.T) {
	database, migrationsFS := setupMigrateTest(t)

	if err := database.MigrateTo(migrationsFS, 1); err != nil {
		t.Fatalf("Failed to migrate to 1: %v", err)
	}
	version, _, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}
	if tableExists(t, database, "cameras") {
		t.Error("cameras table should not exist at version 1")
	}

	if err := database.MigrateTo(migrationsFS, 2); err != nil {
		t.Fatalf("Failed to migrate to 2: %v", err)
	}
	if !tableExists(t, database, "cameras") {
		t.Error("cameras table should exist at version 2")
	}
}

func TestBaselineAtVersion(t *testing.T) {
	database, migrationsFS := setupMigrateTest(t)

	if err := database.BaselineAtVersion(1); err != nil {
		t.Fatalf("Failed to baseline: %v", err)
	}
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected version 1 clean after baseline, got %d dirty=%v", version, dirty)
	}

	// Baselining twice is refused.
	if err := database.BaselineAtVersion(2); err == nil {
		t.Error("Expected error baselining a database with migrations applied")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	database, migrationsFS := setupMigrateTest(t)

	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if status["current_version"] != uint(0) {
		t.Errorf("Expected current_version 0, got %v", status["current_version"])
	}

	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("Failed to migrate up: %v", err)
	}
	status, err = database.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	if status["dirty"] != false {
		t.Errorf("Expected dirty=false, got %v", status["dirty"])
	}
	if status["schema_migrations_exists"] != true {
		t.Errorf("Expected schema_migrations_exists=true, got %v", status["schema_migrations_exists"])
	}
}

func TestCheckAndPromptMigrations(t *testing.T) {
	database, migrationsFS := setupMigrateTest(t)

	// Fresh database is behind: needs migrations.
	needed, err := database.CheckAndPromptMigrations(migrationsFS)
	if !needed {
		t.Error("Expected migrations needed on fresh database")
	}
	if err == nil {
		t.Error("Expected out-of-date error on fresh database")
	}

	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("Failed to migrate up: %v", err)
	}
	needed, err = database.CheckAndPromptMigrations(migrationsFS)
	if needed || err != nil {
		t.Errorf("Expected up-to-date database to pass check, got needed=%v err=%v", needed, err)
	}
}

func TestEmbeddedMigrationsComplete(t *testing.T) {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("Failed to get migrations FS: %v", err)
	}

	ups, err := fs.Glob(migrationsFS, "*.up.sql")
	if err != nil {
		t.Fatalf("Failed to glob up migrations: %v", err)
	}
	downs, err := fs.Glob(migrationsFS, "*.down.sql")
	if err != nil {
		t.Fatalf("Failed to glob down migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("No embedded up migrations found")
	}
	if len(ups) != len(downs) {
		t.Errorf("Mismatched migrations: %d up, %d down", len(ups), len(downs))
	}
}
