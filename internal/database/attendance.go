package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"attendancehub/pkg/types"
)

// CreateAttendance stores an attendance record with its taps. A second record
// for the same course and date is an ErrConflict.
func (m *Manager) CreateAttendance(ctx context.Context, attendance *types.Attendance) error {
	if attendance.ID == "" {
		attendance.ID = uuid.NewString()
	}
	attendance.Date = dbTime(attendance.Date)
	attendance.CreatedAt = now()

	return m.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, m.q(`
			INSERT INTO attendance (id, course_id, date, created_at)
			VALUES (?, ?, ?, ?)`),
			attendance.ID, attendance.CourseID, attendance.Date, attendance.CreatedAt)
		if err != nil {
			return translate(err, "failed to insert attendance")
		}

		for _, p := range attendance.StudentsPresent {
			_, err := tx.ExecContext(ctx, m.q(`
				INSERT INTO attendance_presence (attendance_id, student_id, time)
				VALUES (?, ?, ?)
				ON CONFLICT (attendance_id, student_id) DO NOTHING`),
				attendance.ID, p.StudentID, p.Time)
			if err != nil {
				return translate(err, "failed to insert attendance tap")
			}
		}
		return nil
	})
}

// LatestAttendance returns the most recently dated record of a course,
// without taps.
func (m *Manager) LatestAttendance(ctx context.Context, courseID string) (*types.Attendance, error) {
	var a types.Attendance
	err := m.db.GetContext(ctx, &a, m.q(`
		SELECT a.id, a.course_id, c.course_code, a.date, a.created_at
		FROM attendance a
		JOIN courses c ON c.id = a.course_id
		WHERE a.course_id = ?
		ORDER BY a.date DESC
		LIMIT 1`), courseID)
	if err != nil {
		return nil, translate(err, "latest attendance")
	}
	return &a, nil
}

// AttendanceExists reports whether a record with exactly this date exists.
func (m *Manager) AttendanceExists(ctx context.Context, courseID string, date time.Time) (bool, error) {
	var n int
	err := m.db.GetContext(ctx, &n,
		m.q(`SELECT COUNT(*) FROM attendance WHERE course_id = ? AND date = ?`),
		courseID, dbTime(date))
	if err != nil {
		return false, errors.Wrap(err, "failed to query attendance")
	}
	return n > 0, nil
}

type presenceRow struct {
	AttendanceID string `db:"attendance_id"`
	types.Presence
}

// ListAttendance returns every record of a course, oldest first, with taps.
func (m *Manager) ListAttendance(ctx context.Context, courseID string) ([]*types.Attendance, error) {
	var records []*types.Attendance
	err := m.db.SelectContext(ctx, &records, m.q(`
		SELECT a.id, a.course_id, c.course_code, a.date, a.created_at
		FROM attendance a
		JOIN courses c ON c.id = a.course_id
		WHERE a.course_id = ?
		ORDER BY a.date`), courseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attendance")
	}

	var rows []presenceRow
	err = m.db.SelectContext(ctx, &rows, m.q(`
		SELECT p.attendance_id, p.student_id, s.matric_no, s.name, p.time
		FROM attendance_presence p
		JOIN attendance a ON a.id = p.attendance_id
		JOIN students s ON s.id = p.student_id
		WHERE a.course_id = ?
		ORDER BY p.time`), courseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attendance taps")
	}

	byID := make(map[string]*types.Attendance, len(records))
	for _, r := range records {
		r.StudentsPresent = []types.Presence{}
		byID[r.ID] = r
	}
	for _, row := range rows {
		if r, ok := byID[row.AttendanceID]; ok {
			r.StudentsPresent = append(r.StudentsPresent, row.Presence)
		}
	}
	return records, nil
}
