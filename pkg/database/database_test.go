package database

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open(DriverSQLite, cfg.DataSourceName())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Driver != DriverSQLite {
		t.Errorf("Expected driver %s, got %s", DriverSQLite, config.Driver)
	}
	if config.DatabasePath != "./data/attendancehub.db" {
		t.Errorf("Expected DatabasePath './data/attendancehub.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate, got %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid sqlite", func(c *Config) {}, false},
		{"valid postgres", func(c *Config) { c.Driver = DriverPostgres; c.DSN = "postgres://localhost/attendance" }, false},
		{"empty path", func(c *Config) { c.DatabasePath = "" }, true},
		{"postgres without dsn", func(c *Config) { c.Driver = DriverPostgres }, true},
		{"unknown driver", func(c *Config) { c.Driver = "mysql" }, true},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DataSourceName(t *testing.T) {
	c := DefaultConfig()
	c.DatabasePath = "/tmp/a.db"
	dsn := c.DataSourceName()
	if !strings.HasPrefix(dsn, "/tmp/a.db?") || !strings.Contains(dsn, "_foreign_keys=on") {
		t.Errorf("unexpected sqlite dsn %q", dsn)
	}

	c.DatabasePath = "file:a.db?mode=memory"
	if dsn := c.DataSourceName(); !strings.Contains(dsn, "mode=memory&_busy_timeout") {
		t.Errorf("existing query string should be extended, got %q", dsn)
	}

	c.Driver = DriverPostgres
	c.DSN = "postgres://u:p@db/attendance"
	if c.DataSourceName() != c.DSN {
		t.Errorf("postgres dsn should pass through, got %q", c.DataSourceName())
	}
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrationManager(db, DriverSQLite)

	pending, err := m.Pending()
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != len(Migrations.Migrations) {
		t.Errorf("expected %d pending migrations, got %v", len(Migrations.Migrations), pending)
	}

	n, err := m.ApplyMigrations()
	if err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	if n != len(Migrations.Migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(Migrations.Migrations), n)
	}

	// Second run is a no-op
	n, err = m.ApplyMigrations()
	if err != nil {
		t.Fatalf("second ApplyMigrations() error = %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 migrations on second run, got %d", n)
	}

	if err := m.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema() error = %v", err)
	}
}

func TestMigrationManager_Rollback(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrationManager(db, DriverSQLite)
	if _, err := m.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}

	n, err := m.Rollback(1)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 rolled back migration, got %d", n)
	}

	v := NewSchemaValidator(db, DriverSQLite)
	if err := v.ValidateTablesExist(); err == nil {
		t.Error("archive tables should be gone after rollback")
	}
}

func TestSchemaValidator_MissingTables(t *testing.T) {
	db := openTestDB(t)
	v := NewSchemaValidator(db, DriverSQLite)

	if err := v.ValidateTablesExist(); err == nil {
		t.Error("expected error on empty database")
	}
	if err := v.ValidateIndexes(); err == nil {
		t.Error("expected index error on empty database")
	}
}

func TestSchemaValidator_ValidateConstraints(t *testing.T) {
	db := openTestDB(t)
	if _, err := NewMigrationManager(db, DriverSQLite).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}

	v := NewSchemaValidator(db, DriverSQLite)
	if err := v.ValidateConstraints(); err != nil {
		t.Errorf("ValidateConstraints() error = %v", err)
	}

	// Probe rows are rolled back
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM device_connections").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected probe rows to be rolled back, found %d", count)
	}
}

func TestSchema_StudentStatusCheck(t *testing.T) {
	db := openTestDB(t)
	if _, err := NewMigrationManager(db, DriverSQLite).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO students (id, name, matric_no, status, created_at, updated_at)
		VALUES ('s1', 'Ada', 'M1', 'graduated', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("expected check constraint to reject unknown status")
	}
}

func TestDatabase_SQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)
	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("ApplySQLiteOptimizations() error = %v", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to read journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL journal mode, got %s", journalMode)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign keys enabled, got %d", foreignKeys)
	}
}
