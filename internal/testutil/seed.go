package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"attendancehub/internal/database"
	"attendancehub/pkg/types"
)

// SeedLecturer stores a lecturer with the given email.
func SeedLecturer(t *testing.T, store *database.Manager, email string) *types.Lecturer {
	t.Helper()
	lecturer := &types.Lecturer{Title: "Dr.", Name: "Lecturer " + email, Email: email}
	if err := store.CreateLecturer(context.Background(), lecturer); err != nil {
		t.Fatalf("CreateLecturer failed: %v", err)
	}
	return lecturer
}

// SeedCourse stores a course, owned by lecturer when not nil.
func SeedCourse(t *testing.T, store *database.Manager, code string, lecturer *types.Lecturer) *types.Course {
	t.Helper()
	course := &types.Course{CourseCode: code, CourseName: "Course " + code}
	if lecturer != nil {
		course.LecturerID = &lecturer.ID
	}
	if err := store.CreateCourse(context.Background(), course); err != nil {
		t.Fatalf("CreateCourse failed: %v", err)
	}
	return course
}

// SeedActiveStudent stores a student enrolled on course with a sensor slot.
func SeedActiveStudent(t *testing.T, store *database.Manager, course *types.Course, matricNo string, slot int64) *types.Student {
	t.Helper()
	ctx := context.Background()
	student := &types.Student{
		Name:     "Student " + matricNo,
		MatricNo: matricNo,
		Email:    types.StudentEmail(matricNo, "students.unilorin.edu.ng"),
	}
	if err := store.CreateStudent(ctx, student); err != nil {
		t.Fatalf("CreateStudent failed: %v", err)
	}
	if err := store.CompleteEnrollment(ctx, student.ID, course.ID, slot, fmt.Sprintf("hash-%d", slot)); err != nil {
		t.Fatalf("CompleteEnrollment failed: %v", err)
	}
	student.Status = types.StudentActive
	student.IDOnSensor = &slot
	return student
}

// SeedAttendance stores an attendance record with the given students present.
func SeedAttendance(t *testing.T, store *database.Manager, course *types.Course, date time.Time, present ...*types.Student) *types.Attendance {
	t.Helper()
	record := &types.Attendance{CourseID: course.ID, CourseCode: course.CourseCode, Date: date}
	for _, s := range present {
		record.StudentsPresent = append(record.StudentsPresent, types.Presence{
			StudentID: s.ID,
			Time:      date.Add(5 * time.Minute).Format(time.RFC3339),
		})
	}
	if err := store.CreateAttendance(context.Background(), record); err != nil {
		t.Fatalf("CreateAttendance failed: %v", err)
	}
	return record
}
