package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a migrated database against what the store expects.
type SchemaValidator struct {
	db      *sql.DB
	dialect string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, dialect string) *SchemaValidator {
	return &SchemaValidator{db: db, dialect: dialect}
}

var requiredTables = map[string]string{
	"lecturers":                 "Course owners",
	"level_advisers":            "Level reports and clear phrases",
	"courses":                   "Course catalogue",
	"students":                  "Enrolled and staged students",
	"course_students":           "Course rosters",
	"attendance":                "Attendance records",
	"attendance_presence":       "Attendance taps",
	"device_connections":        "Known device locations",
	"lecturer_device_locations": "Web user device bindings",
	"ongoing_requests":          "Request correlation ledger",
	"archived_students":         "Archive of cleared students",
	"gorp_migrations":           "Migration tracking",
}

var requiredIndexes = map[string]string{
	"idx_students_status_created":          "Pending student sweep",
	"idx_course_students_student":          "Enrollment counts",
	"idx_lecturer_device_locations_device": "Feedback fallback routing",
	"idx_ongoing_requests_key":             "Ledger lookups",
	"idx_level_advisers_level":             "Report recipients",
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateIndexes verifies that all lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints verifies the uniqueness rules the coordinator relies on
// are enforced by the database itself.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	insert := `INSERT INTO device_connections (id, device_location, created_at) VALUES ('probe-1', 'constraint-probe', CURRENT_TIMESTAMP)`
	if _, err := tx.Exec(insert); err != nil {
		return fmt.Errorf("failed to insert probe device: %w", err)
	}
	dup := `INSERT INTO device_connections (id, device_location, created_at) VALUES ('probe-2', 'constraint-probe', CURRENT_TIMESTAMP)`
	if _, err := tx.Exec(dup); err == nil {
		return fmt.Errorf("unique constraint not enforced: device_connections.device_location")
	}
	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=$1"
	if v.dialect == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name=$1"
	}
	var count int
	if err := v.db.QueryRow(query, tableName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=$1"
	if v.dialect == DriverPostgres {
		query = "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND indexname=$1"
	}
	var count int
	if err := v.db.QueryRow(query, indexName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
