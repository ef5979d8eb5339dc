package database

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

// Migrations are embedded so the binary carries its own schema. Column types
// stay within the subset sqlite and postgres both accept.
var Migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "001_core_schema",
			Up: []string{
				`CREATE TABLE lecturers (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					email TEXT NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE level_advisers (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					email TEXT NOT NULL UNIQUE,
					level INTEGER NOT NULL,
					clear_phrase_hash TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX idx_level_advisers_level ON level_advisers(level)`,
				`CREATE TABLE courses (
					id TEXT PRIMARY KEY,
					course_code TEXT NOT NULL UNIQUE,
					course_name TEXT NOT NULL DEFAULT '',
					lecturer_id TEXT REFERENCES lecturers(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE students (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					email TEXT NOT NULL DEFAULT '',
					matric_no TEXT NOT NULL UNIQUE,
					id_on_sensor BIGINT UNIQUE,
					fingerprint_hash TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'active')),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX idx_students_status_created ON students(status, created_at)`,
				`CREATE TABLE course_students (
					course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
					student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
					enrolled_at TIMESTAMP NOT NULL,
					PRIMARY KEY (course_id, student_id)
				)`,
				`CREATE INDEX idx_course_students_student ON course_students(student_id)`,
				`CREATE TABLE attendance (
					id TEXT PRIMARY KEY,
					course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
					date TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL,
					UNIQUE (course_id, date)
				)`,
				`CREATE TABLE attendance_presence (
					attendance_id TEXT NOT NULL REFERENCES attendance(id) ON DELETE CASCADE,
					student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
					time TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (attendance_id, student_id)
				)`,
				`CREATE TABLE device_connections (
					id TEXT PRIMARY KEY,
					device_location TEXT NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE lecturer_device_locations (
					email TEXT PRIMARY KEY,
					device_location TEXT NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX idx_lecturer_device_locations_device ON lecturer_device_locations(device_location)`,
				`CREATE TABLE ongoing_requests (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL,
					course_code TEXT NOT NULL,
					event_feedback_name TEXT NOT NULL,
					state TEXT NOT NULL CHECK (state IN ('requested', 'awaiting_hardware')),
					created_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX idx_ongoing_requests_key ON ongoing_requests(course_code, event_feedback_name, expires_at)`,
			},
			Down: []string{
				`DROP TABLE ongoing_requests`,
				`DROP TABLE lecturer_device_locations`,
				`DROP TABLE device_connections`,
				`DROP TABLE attendance_presence`,
				`DROP TABLE attendance`,
				`DROP TABLE course_students`,
				`DROP TABLE students`,
				`DROP TABLE courses`,
				`DROP TABLE level_advisers`,
				`DROP TABLE lecturers`,
			},
		},
		{
			Id: "002_archive_tables",
			Up: []string{
				`CREATE TABLE archived_lecturers (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL DEFAULT '',
					name TEXT NOT NULL,
					email TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					archived_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE archived_courses (
					id TEXT PRIMARY KEY,
					course_code TEXT NOT NULL,
					course_name TEXT NOT NULL DEFAULT '',
					lecturer_id TEXT,
					created_at TIMESTAMP NOT NULL,
					archived_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE archived_students (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					email TEXT NOT NULL DEFAULT '',
					matric_no TEXT NOT NULL,
					id_on_sensor BIGINT,
					fingerprint_hash TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL,
					archived_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE archived_course_students (
					course_id TEXT NOT NULL,
					student_id TEXT NOT NULL,
					archived_at TIMESTAMP NOT NULL,
					PRIMARY KEY (course_id, student_id)
				)`,
				`CREATE TABLE archived_attendance (
					id TEXT PRIMARY KEY,
					course_id TEXT NOT NULL,
					date TIMESTAMP NOT NULL,
					archived_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE archived_attendance_presence (
					attendance_id TEXT NOT NULL,
					student_id TEXT NOT NULL,
					time TEXT NOT NULL DEFAULT '',
					archived_at TIMESTAMP NOT NULL,
					PRIMARY KEY (attendance_id, student_id)
				)`,
			},
			Down: []string{
				`DROP TABLE archived_attendance_presence`,
				`DROP TABLE archived_attendance`,
				`DROP TABLE archived_course_students`,
				`DROP TABLE archived_students`,
				`DROP TABLE archived_courses`,
				`DROP TABLE archived_lecturers`,
			},
		},
	},
}

// MigrationManager applies the embedded migrations.
type MigrationManager struct {
	db      *sql.DB
	dialect string
}

// NewMigrationManager creates a migration manager for driver.
func NewMigrationManager(db *sql.DB, driver string) *MigrationManager {
	return &MigrationManager{db: db, dialect: driver}
}

// ApplyMigrations applies all pending migrations and returns how many ran.
func (m *MigrationManager) ApplyMigrations() (int, error) {
	n, err := migrate.Exec(m.db, m.dialect, Migrations, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return n, nil
}

// Rollback reverts up to max applied migrations (0 means all).
func (m *MigrationManager) Rollback(max int) (int, error) {
	n, err := migrate.ExecMax(m.db, m.dialect, Migrations, migrate.Down, max)
	if err != nil {
		return n, fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return n, nil
}

// Pending returns the ids of migrations not yet applied.
func (m *MigrationManager) Pending() ([]string, error) {
	planned, _, err := migrate.PlanMigration(m.db, m.dialect, Migrations, migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to plan migrations: %w", err)
	}
	ids := make([]string, 0, len(planned))
	for _, p := range planned {
		ids = append(ids, p.Id)
	}
	return ids, nil
}

// ValidateSchema ensures the database carries every table the store uses.
func (m *MigrationManager) ValidateSchema() error {
	v := NewSchemaValidator(m.db, m.dialect)
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}
