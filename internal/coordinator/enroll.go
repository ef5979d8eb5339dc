package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/events"
	"attendancehub/internal/mail"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

func (c *Coordinator) onEnroll(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	email := conn.ClientType()
	if err := c.requestEnroll(ctx, email, p.(*types.EnrollRequest)); err != nil {
		c.finish([]string{email}, types.EventEnrollFeedback, nil, err)
	}
}

// requestEnroll stages the student and asks the device to capture a
// fingerprint. A new student stays pending until the device confirms.
func (c *Coordinator) requestEnroll(ctx context.Context, email string, req *types.EnrollRequest) error {
	course, err := c.enrollCourse(ctx, req)
	if err != nil {
		return err
	}

	student, err := c.store.GetStudentByMatricNo(ctx, req.MatricNo)
	switch {
	case err == nil:
		if !strings.EqualFold(strings.TrimSpace(student.Name), strings.TrimSpace(req.Name)) {
			return fail(fmt.Sprintf("Student with Matric No. %s already exists with a different name", req.MatricNo), ErrNotEligible)
		}
		enrolled, err := c.store.IsEnrolled(ctx, course.ID, student.ID)
		if err != nil {
			return err
		}
		if enrolled {
			return fail(fmt.Sprintf("Student with Matric No. %s is already enrolled for this course", req.MatricNo), ErrNotEligible)
		}
	case errors.Is(err, interfaces.ErrNotFound):
		student = nil
	default:
		return err
	}

	location, err := c.targetDevice(ctx, email, req.DeviceLocation)
	if err != nil {
		return err
	}

	ongoing, err := c.open(ctx, email, course.CourseCode, types.EventEnrollFeedback, "enrollment", time.Time{})
	if err != nil {
		return err
	}

	if student == nil {
		student = &types.Student{
			Name:     strings.TrimSpace(req.Name),
			MatricNo: req.MatricNo,
			Email:    types.StudentEmail(req.MatricNo, c.config.StudentEmailDomain),
			Status:   types.StudentPending,
		}
		if err := c.store.CreateStudent(ctx, student); err != nil {
			c.resolve(ctx, course.CourseCode, types.EventEnrollFeedback)
			return err
		}
	}

	err = c.forward(location, types.EventEnrollRequest, types.EnrollCommand{
		Name:        student.Name,
		MatricNo:    student.MatricNo,
		CourseCode:  course.CourseCode,
		RequestedBy: email,
	})
	if err != nil {
		c.resolve(ctx, course.CourseCode, types.EventEnrollFeedback)
		c.discardPending(ctx, student)
		return err
	}
	c.awaiting(ctx, ongoing)
	return nil
}

// enrollCourse finds the course of an enroll request, creating it when the
// request names the course and a known lecturer.
func (c *Coordinator) enrollCourse(ctx context.Context, req *types.EnrollRequest) (*types.Course, error) {
	course, err := c.store.GetCourseByCode(ctx, req.CourseCode)
	if err == nil || !errors.Is(err, interfaces.ErrNotFound) {
		return course, err
	}
	if req.CourseName == "" || req.LecturerEmail == "" {
		return nil, fail(fmt.Sprintf("Course %s not found", req.CourseCode), err)
	}

	lecturer, err := c.store.GetLecturerByEmail(ctx, req.LecturerEmail)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fail(fmt.Sprintf("Lecturer %s not found", req.LecturerEmail), err)
	}
	if err != nil {
		return nil, err
	}

	course = &types.Course{
		CourseCode: req.CourseCode,
		CourseName: req.CourseName,
		LecturerID: &lecturer.ID,
	}
	if err := c.store.CreateCourse(ctx, course); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"course_code": course.CourseCode,
		"lecturer":    lecturer.Email,
	}).Info("course created for enrollment")
	return course, nil
}

func (c *Coordinator) onEnrollResponse(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	resp := p.(*types.EnrollResponse)
	requesters := c.resolveRequesters(ctx, conn, resp.CourseCode, types.EventEnrollFeedback, resp.RequestedBy)
	fb, err := c.completeEnroll(ctx, resp)
	c.resolve(ctx, resp.CourseCode, types.EventEnrollFeedback)
	c.finish(requesters, types.EventEnrollFeedback, fb, err)
}

// completeEnroll applies the device answer: a failure rolls the staged
// student back, a success activates them on the course.
func (c *Coordinator) completeEnroll(ctx context.Context, resp *types.EnrollResponse) (*types.Feedback, error) {
	student, err := c.store.GetStudentByMatricNo(ctx, resp.MatricNo)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fail(fmt.Sprintf("Student with Matric No. %s not found", resp.MatricNo), err)
	}
	if err != nil {
		return nil, err
	}

	if resp.Error {
		c.discardPending(ctx, student)
		return nil, fail(fmt.Sprintf("Enrollment for student with Matric No. %s failed", resp.MatricNo), hardwareError(resp.Message))
	}
	if resp.IDOnSensor == nil {
		c.discardPending(ctx, student)
		return nil, fail(fmt.Sprintf("Enrollment for student with Matric No. %s failed", resp.MatricNo),
			hardwareError("no sensor slot reported"))
	}

	course, err := c.store.GetCourseByCode(ctx, resp.CourseCode)
	if errors.Is(err, interfaces.ErrNotFound) {
		c.discardPending(ctx, student)
		return nil, fail(fmt.Sprintf("Course %s not found", resp.CourseCode), err)
	}
	if err != nil {
		return nil, err
	}

	if err := c.store.CompleteEnrollment(ctx, student.ID, course.ID, *resp.IDOnSensor, resp.FingerprintHash); err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			c.discardPending(ctx, student)
			return nil, fail(fmt.Sprintf("Sensor slot %d is already assigned to another student", *resp.IDOnSensor), err)
		}
		return nil, err
	}
	student.Status = types.StudentActive
	student.IDOnSensor = resp.IDOnSensor

	log.WithFields(log.Fields{
		"matric_no":    student.MatricNo,
		"course_code":  course.CourseCode,
		"id_on_sensor": *resp.IDOnSensor,
	}).Info("student enrolled")

	msg, err := mail.EnrollmentSuccessful(student, course.CourseCode)
	c.sendMail(ctx, msg, err)
	c.publish(events.SubjectEnrollmentCompleted, events.EnrollmentCompleted{
		MatricNo:   student.MatricNo,
		CourseCode: course.CourseCode,
		IDOnSensor: *resp.IDOnSensor,
		At:         c.now().UTC(),
	})

	return success(fmt.Sprintf("Student with Matric No. %s is successfully enrolled", student.MatricNo), student), nil
}

// discardPending deletes a student that never got past staging.
func (c *Coordinator) discardPending(ctx context.Context, student *types.Student) {
	if student.Status != types.StudentPending {
		return
	}
	if err := c.store.DeleteStudent(ctx, student.ID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		log.WithField("matric_no", student.MatricNo).WithError(err).Error("failed to roll back staged student")
		return
	}
	log.WithField("matric_no", student.MatricNo).Info("staged student rolled back")
}

func hardwareError(message string) error {
	if message == "" {
		return ErrHardware
	}
	return fmt.Errorf("%w: %s", ErrHardware, message)
}
