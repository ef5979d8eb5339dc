package interfaces

import (
	"context"
	"time"

	"attendancehub/pkg/types"
)

// Store handles all persistence. Lookups that find nothing return
// ErrNotFound; unique constraint violations return ErrConflict.
type Store interface {
	// Devices
	DeviceConnectionExists(ctx context.Context, deviceLocation string) (bool, error)
	CreateDeviceConnection(ctx context.Context, deviceLocation string) error
	ListDeviceConnections(ctx context.Context) ([]*types.DeviceConnection, error)
	SetLecturerDeviceLocation(ctx context.Context, email, deviceLocation string) error
	GetLecturerDeviceLocation(ctx context.Context, email string) (string, error)
	EmailsForDeviceLocation(ctx context.Context, deviceLocation string) ([]string, error)

	// People
	CreateLecturer(ctx context.Context, lecturer *types.Lecturer) error
	GetLecturerByEmail(ctx context.Context, email string) (*types.Lecturer, error)
	GetLecturerByID(ctx context.Context, id string) (*types.Lecturer, error)
	CreateLevelAdviser(ctx context.Context, adviser *types.LevelAdviser) error
	GetLevelAdviserByEmail(ctx context.Context, email string) (*types.LevelAdviser, error)
	GetLevelAdviserByLevel(ctx context.Context, level int) (*types.LevelAdviser, error)
	SetLevelAdviserPhrase(ctx context.Context, email, phraseHash string) error

	// Courses and enrollment
	CreateCourse(ctx context.Context, course *types.Course) error
	GetCourseByCode(ctx context.Context, courseCode string) (*types.Course, error)
	CreateStudent(ctx context.Context, student *types.Student) error
	GetStudentByMatricNo(ctx context.Context, matricNo string) (*types.Student, error)
	GetStudentByIDOnSensor(ctx context.Context, idOnSensor int64) (*types.Student, error)
	DeleteStudent(ctx context.Context, studentID string) error
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	ListCourseStudents(ctx context.Context, courseID string) ([]*types.Student, error)
	CompleteEnrollment(ctx context.Context, studentID, courseID string, idOnSensor int64, fingerprintHash string) error
	RemoveStudentFromCourse(ctx context.Context, courseID, studentID string) (studentDeleted bool, err error)
	DeletePendingStudentsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Attendance
	CreateAttendance(ctx context.Context, attendance *types.Attendance) error
	LatestAttendance(ctx context.Context, courseID string) (*types.Attendance, error)
	AttendanceExists(ctx context.Context, courseID string, date time.Time) (bool, error)
	ListAttendance(ctx context.Context, courseID string) ([]*types.Attendance, error)

	// Ongoing requests
	CreateOngoingRequest(ctx context.Context, req *types.OngoingRequest) error
	FindOngoingRequest(ctx context.Context, courseCode, eventFeedbackName string, now time.Time) (*types.OngoingRequest, error)
	UpdateOngoingRequestState(ctx context.Context, id, state string) error
	DeleteOngoingRequests(ctx context.Context, courseCode, eventFeedbackName string) (int, error)
	DeleteExpiredOngoingRequests(ctx context.Context, now time.Time) (int, error)
	ListOngoingRequests(ctx context.Context) ([]*types.OngoingRequest, error)

	// ArchiveAndPurge copies every lecturer, course, student and attendance
	// record into the archive tables, then deletes the live rows.
	ArchiveAndPurge(ctx context.Context) error

	HealthCheck(ctx context.Context) error
	Close() error
}
