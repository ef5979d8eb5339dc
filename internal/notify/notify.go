// Package notify warns students who keep missing classes and reports them
// to their lecturer and level adviser.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/mail"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

const (
	DefaultMinClasses = 3
	DefaultThreshold  = 50.0
)

// Store is the persistence the notifier reads.
type Store interface {
	ListCourseStudents(ctx context.Context, courseID string) ([]*types.Student, error)
	ListAttendance(ctx context.Context, courseID string) ([]*types.Attendance, error)
	GetLevelAdviserByLevel(ctx context.Context, level int) (*types.LevelAdviser, error)
	GetLecturerByID(ctx context.Context, id string) (*types.Lecturer, error)
}

// Absentee is a student who missed more than the threshold.
type Absentee struct {
	Student          *types.Student
	MissedPercentage float64
}

// Report is the outcome of one check.
type Report struct {
	TotalClasses int
	Flagged      []Absentee
}

// Notifier runs the missed-attendance check after each stored record.
type Notifier struct {
	store      Store
	mailer     mail.Mailer
	minClasses int
	threshold  float64
}

// New creates a notifier with the default thresholds.
func New(store Store, mailer mail.Mailer) *Notifier {
	return &Notifier{
		store:      store,
		mailer:     mailer,
		minClasses: DefaultMinClasses,
		threshold:  DefaultThreshold,
	}
}

// Evaluate finds the enrolled students who missed more than the threshold of
// the course's classes and are not among presentIDs. Courses with fewer than
// the minimum number of classes yield an empty report.
func (n *Notifier) Evaluate(ctx context.Context, course *types.Course, presentIDs []string) (*Report, error) {
	records, err := n.store.ListAttendance(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	report := &Report{TotalClasses: len(records)}
	if len(records) < n.minClasses {
		return report, nil
	}

	students, err := n.store.ListCourseStudents(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	attended := make(map[string]int)
	for _, record := range records {
		for _, p := range record.StudentsPresent {
			attended[p.StudentID]++
		}
	}
	present := make(map[string]bool, len(presentIDs))
	for _, id := range presentIDs {
		present[id] = true
	}

	for _, s := range students {
		if present[s.ID] {
			continue
		}
		missed := len(records) - attended[s.ID]
		pct := float64(missed) / float64(len(records)) * 100
		if pct > n.threshold {
			report.Flagged = append(report.Flagged, Absentee{Student: s, MissedPercentage: pct})
		}
	}
	sort.Slice(report.Flagged, func(i, j int) bool {
		return report.Flagged[i].Student.MatricNo < report.Flagged[j].Student.MatricNo
	})
	return report, nil
}

// CheckAndNotify evaluates the course and mails every flagged student, the
// level adviser and the lecturer. Individual delivery failures are logged.
func (n *Notifier) CheckAndNotify(ctx context.Context, course *types.Course, presentIDs []string) (*Report, error) {
	report, err := n.Evaluate(ctx, course, presentIDs)
	if err != nil {
		return nil, fmt.Errorf("missed attendance check for %s: %w", course.CourseCode, err)
	}
	if len(report.Flagged) == 0 {
		return report, nil
	}

	logger := log.WithField("course_code", course.CourseCode)
	logger.WithField("flagged", len(report.Flagged)).Info("sending attendance alerts")

	rows := make([]mail.ReportRow, 0, len(report.Flagged))
	for _, a := range report.Flagged {
		rows = append(rows, mail.ReportRow{
			Name:             a.Student.Name,
			MatricNo:         a.Student.MatricNo,
			MissedPercentage: a.MissedPercentage,
		})
		n.send(ctx, logger, func() (*mail.Message, error) {
			return mail.AttendanceAlert(a.Student, course.CourseCode, a.MissedPercentage)
		})
	}

	if level, ok := types.LevelForCourse(course.CourseCode); ok {
		adviser, err := n.store.GetLevelAdviserByLevel(ctx, level)
		switch {
		case err == nil:
			n.send(ctx, logger, func() (*mail.Message, error) {
				return mail.AttendanceReport(adviser.Email, fullName(adviser.Title, adviser.Name), course.CourseCode, rows)
			})
		case !errors.Is(err, interfaces.ErrNotFound):
			logger.WithError(err).Error("failed to look up level adviser")
		}
	}

	if course.LecturerID != nil {
		lecturer, err := n.store.GetLecturerByID(ctx, *course.LecturerID)
		switch {
		case err == nil:
			n.send(ctx, logger, func() (*mail.Message, error) {
				return mail.AttendanceReport(lecturer.Email, fullName(lecturer.Title, lecturer.Name), course.CourseCode, rows)
			})
		case !errors.Is(err, interfaces.ErrNotFound):
			logger.WithError(err).Error("failed to look up lecturer")
		}
	}

	return report, nil
}

func (n *Notifier) send(ctx context.Context, logger *log.Entry, build func() (*mail.Message, error)) {
	msg, err := build()
	if err != nil {
		logger.WithError(err).Error("failed to render email")
		return
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		logger.WithError(err).WithField("to", msg.To).Error("failed to send email")
	}
}

func fullName(title, name string) string {
	if title == "" {
		return name
	}
	return title + " " + name
}
