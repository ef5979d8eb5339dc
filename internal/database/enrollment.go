package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

const (
	courseColumns  = `id, course_code, course_name, lecturer_id, created_at`
	studentColumns = `id, name, email, matric_no, id_on_sensor, fingerprint_hash, status, created_at, updated_at`
)

// CreateCourse inserts a course, assigning an id when empty.
func (m *Manager) CreateCourse(ctx context.Context, course *types.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.CreatedAt = now()

	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO courses (id, course_code, course_name, lecturer_id, created_at)
			VALUES (:id, :course_code, :course_name, :lecturer_id, :created_at)`, course)
		return translate(err, "failed to insert course "+course.CourseCode)
	})
}

// GetCourseByCode looks a course up by its code.
func (m *Manager) GetCourseByCode(ctx context.Context, courseCode string) (*types.Course, error) {
	var c types.Course
	err := m.db.GetContext(ctx, &c, m.q(`SELECT `+courseColumns+` FROM courses WHERE course_code = ?`), courseCode)
	if err != nil {
		return nil, translate(err, "course "+courseCode)
	}
	return &c, nil
}

// CreateStudent inserts a student. New students default to pending.
func (m *Manager) CreateStudent(ctx context.Context, student *types.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.Status == "" {
		student.Status = types.StudentPending
	}
	student.CreatedAt = now()
	student.UpdatedAt = student.CreatedAt

	return m.executeWrite(func(db *sqlx.DB) error {
		_, err := db.NamedExecContext(ctx, `
			INSERT INTO students (id, name, email, matric_no, id_on_sensor, fingerprint_hash, status, created_at, updated_at)
			VALUES (:id, :name, :email, :matric_no, :id_on_sensor, :fingerprint_hash, :status, :created_at, :updated_at)`, student)
		return translate(err, "failed to insert student "+student.MatricNo)
	})
}

// GetStudentByMatricNo looks a student up by matric number.
func (m *Manager) GetStudentByMatricNo(ctx context.Context, matricNo string) (*types.Student, error) {
	var s types.Student
	err := m.db.GetContext(ctx, &s, m.q(`SELECT `+studentColumns+` FROM students WHERE matric_no = ?`), matricNo)
	if err != nil {
		return nil, translate(err, "student "+matricNo)
	}
	return &s, nil
}

// GetStudentByIDOnSensor looks a student up by sensor slot.
func (m *Manager) GetStudentByIDOnSensor(ctx context.Context, idOnSensor int64) (*types.Student, error) {
	var s types.Student
	err := m.db.GetContext(ctx, &s, m.q(`SELECT `+studentColumns+` FROM students WHERE id_on_sensor = ?`), idOnSensor)
	if err != nil {
		return nil, translate(err, "student on sensor slot")
	}
	return &s, nil
}

// DeleteStudent removes a student with their enrollments and taps.
func (m *Manager) DeleteStudent(ctx context.Context, studentID string) error {
	return m.executeWrite(func(db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, m.q(`DELETE FROM students WHERE id = ?`), studentID)
		if err != nil {
			return errors.Wrap(err, "failed to delete student")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrap(interfaces.ErrNotFound, "student "+studentID)
		}
		return nil
	})
}

// IsEnrolled reports whether a student is on a course roster.
func (m *Manager) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var n int
	err := m.db.GetContext(ctx, &n,
		m.q(`SELECT COUNT(*) FROM course_students WHERE course_id = ? AND student_id = ?`),
		courseID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "failed to query enrollment")
	}
	return n > 0, nil
}

// ListCourseStudents returns the roster of a course ordered by matric number.
func (m *Manager) ListCourseStudents(ctx context.Context, courseID string) ([]*types.Student, error) {
	var students []*types.Student
	err := m.db.SelectContext(ctx, &students, m.q(`
		SELECT s.id, s.name, s.email, s.matric_no, s.id_on_sensor, s.fingerprint_hash, s.status, s.created_at, s.updated_at
		FROM students s
		JOIN course_students cs ON cs.student_id = s.id
		WHERE cs.course_id = ?
		ORDER BY s.matric_no`), courseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list course students")
	}
	return students, nil
}

// CompleteEnrollment activates a student with the slot the device assigned
// and links them to the course.
func (m *Manager) CompleteEnrollment(ctx context.Context, studentID, courseID string, idOnSensor int64, fingerprintHash string) error {
	return m.withTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		res, err := tx.ExecContext(ctx, m.q(`
			UPDATE students
			SET status = ?, id_on_sensor = ?, fingerprint_hash = ?, updated_at = ?
			WHERE id = ?`),
			types.StudentActive, idOnSensor, fingerprintHash, ts, studentID)
		if err != nil {
			return translate(err, "failed to activate student")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrap(interfaces.ErrNotFound, "student "+studentID)
		}

		_, err = tx.ExecContext(ctx, m.q(`
			INSERT INTO course_students (course_id, student_id, enrolled_at)
			VALUES (?, ?, ?)
			ON CONFLICT (course_id, student_id) DO NOTHING`),
			courseID, studentID, ts)
		return translate(err, "failed to link student to course")
	})
}

// RemoveStudentFromCourse drops a student's taps for the course and the
// roster entry, then deletes the student once no enrollments remain. A
// student kept for other courses loses the sensor slot, which the device has
// already freed.
func (m *Manager) RemoveStudentFromCourse(ctx context.Context, courseID, studentID string) (bool, error) {
	deleted := false
	err := m.withTx(ctx, func(tx *sqlx.Tx) error {
		deleted = false

		if _, err := tx.ExecContext(ctx, m.q(`
			DELETE FROM attendance_presence
			WHERE student_id = ?
			AND attendance_id IN (SELECT id FROM attendance WHERE course_id = ?)`),
			studentID, courseID); err != nil {
			return errors.Wrap(err, "failed to delete attendance taps")
		}

		if _, err := tx.ExecContext(ctx,
			m.q(`DELETE FROM course_students WHERE course_id = ? AND student_id = ?`),
			courseID, studentID); err != nil {
			return errors.Wrap(err, "failed to delete enrollment")
		}

		var remaining int
		if err := tx.GetContext(ctx, &remaining,
			m.q(`SELECT COUNT(*) FROM course_students WHERE student_id = ?`), studentID); err != nil {
			return errors.Wrap(err, "failed to count enrollments")
		}
		if remaining > 0 {
			_, err := tx.ExecContext(ctx, m.q(`
				UPDATE students
				SET id_on_sensor = NULL, fingerprint_hash = '', updated_at = ?
				WHERE id = ?`),
				dbTime(time.Now()), studentID)
			return errors.Wrap(err, "failed to unlink sensor slot")
		}

		if _, err := tx.ExecContext(ctx, m.q(`DELETE FROM students WHERE id = ?`), studentID); err != nil {
			return errors.Wrap(err, "failed to delete student")
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// DeletePendingStudentsBefore removes students still awaiting a device
// confirmation that were staged before cutoff.
func (m *Manager) DeletePendingStudentsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int64
	err := m.executeWrite(func(db *sqlx.DB) error {
		res, err := db.ExecContext(ctx,
			m.q(`DELETE FROM students WHERE status = ? AND created_at < ?`),
			types.StudentPending, dbTime(cutoff))
		if err != nil {
			return errors.Wrap(err, "failed to delete pending students")
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}
