package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// archiveStatements copy live rows into the archive tables. Rows already
// archived are skipped so a retried clear does not fail on primary keys.
var archiveStatements = []struct {
	what  string
	query string
}{
	{"lecturers", `
		INSERT INTO archived_lecturers (id, title, name, email, created_at, archived_at)
		SELECT id, title, name, email, created_at, ? FROM lecturers
		WHERE id NOT IN (SELECT id FROM archived_lecturers)`},
	{"courses", `
		INSERT INTO archived_courses (id, course_code, course_name, lecturer_id, created_at, archived_at)
		SELECT id, course_code, course_name, lecturer_id, created_at, ? FROM courses
		WHERE id NOT IN (SELECT id FROM archived_courses)`},
	{"students", `
		INSERT INTO archived_students (id, name, email, matric_no, id_on_sensor, fingerprint_hash, created_at, archived_at)
		SELECT id, name, email, matric_no, id_on_sensor, fingerprint_hash, created_at, ? FROM students
		WHERE id NOT IN (SELECT id FROM archived_students)`},
	{"enrollments", `
		INSERT INTO archived_course_students (course_id, student_id, archived_at)
		SELECT cs.course_id, cs.student_id, ? FROM course_students cs
		WHERE NOT EXISTS (
			SELECT 1 FROM archived_course_students a
			WHERE a.course_id = cs.course_id AND a.student_id = cs.student_id)`},
	{"attendance", `
		INSERT INTO archived_attendance (id, course_id, date, archived_at)
		SELECT id, course_id, date, ? FROM attendance
		WHERE id NOT IN (SELECT id FROM archived_attendance)`},
	{"attendance taps", `
		INSERT INTO archived_attendance_presence (attendance_id, student_id, time, archived_at)
		SELECT p.attendance_id, p.student_id, p.time, ? FROM attendance_presence p
		WHERE NOT EXISTS (
			SELECT 1 FROM archived_attendance_presence a
			WHERE a.attendance_id = p.attendance_id AND a.student_id = p.student_id)`},
}

// purgeStatements run children first so foreign keys never block.
var purgeStatements = []string{
	`DELETE FROM attendance_presence`,
	`DELETE FROM attendance`,
	`DELETE FROM course_students`,
	`DELETE FROM students`,
	`DELETE FROM courses`,
	`DELETE FROM lecturers`,
}

// ArchiveAndPurge copies every lecturer, course, student and attendance row
// into the archive tables and then deletes the live rows, atomically.
func (m *Manager) ArchiveAndPurge(ctx context.Context) error {
	return m.withTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		for _, stmt := range archiveStatements {
			if _, err := tx.ExecContext(ctx, m.q(stmt.query), ts); err != nil {
				return errors.Wrapf(err, "failed to archive %s", stmt.what)
			}
		}
		for _, stmt := range purgeStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "failed to purge (%s)", stmt)
			}
		}
		return nil
	})
}
