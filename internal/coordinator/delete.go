package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/events"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

// DeleteResult is the data of a successful delete feedback.
type DeleteResult struct {
	Removed  []string         `json:"removed"`
	Students []*types.Student `json:"students"`
}

func (c *Coordinator) onDeleteFingerprint(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	email := conn.ClientType()
	if err := c.requestDelete(ctx, email, p.(*types.DeleteFingerprintRequest)); err != nil {
		c.finish([]string{email}, types.EventDeleteFingerprintFeedback, nil, err)
	}
}

// requestDelete resolves the named students to sensor slots and asks the
// device to free them. Unknown students and students without a slot are
// skipped.
func (c *Coordinator) requestDelete(ctx context.Context, email string, req *types.DeleteFingerprintRequest) error {
	course, err := c.store.GetCourseByCode(ctx, req.CourseCode)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fail(fmt.Sprintf("Course %s not found", req.CourseCode), err)
	}
	if err != nil {
		return err
	}

	logger := log.WithField("course_code", course.CourseCode)
	targets := req.Targets()
	var ids []int64
	for _, matricNo := range targets {
		student, err := c.store.GetStudentByMatricNo(ctx, matricNo)
		if errors.Is(err, interfaces.ErrNotFound) {
			logger.WithField("matric_no", matricNo).Info("skipping unknown student")
			continue
		}
		if err != nil {
			return err
		}
		if student.IDOnSensor == nil {
			logger.WithField("matric_no", matricNo).Info("skipping student without a sensor slot")
			continue
		}
		enrolled, err := c.store.IsEnrolled(ctx, course.ID, student.ID)
		if err != nil {
			return err
		}
		if !enrolled {
			logger.WithField("matric_no", matricNo).Info("skipping student not on roster")
			continue
		}
		ids = append(ids, *student.IDOnSensor)
	}
	if len(ids) == 0 {
		if len(targets) == 1 {
			return fail(fmt.Sprintf("Student with %s not found", targets[0]), ErrNotEligible)
		}
		return fail(fmt.Sprintf("None of the students were found in %s", course.CourseCode), ErrNotEligible)
	}

	location, err := c.targetDevice(ctx, email, req.DeviceLocation)
	if err != nil {
		return err
	}

	ongoing, err := c.open(ctx, email, course.CourseCode, types.EventDeleteFingerprintFeedback, "delete", time.Time{})
	if err != nil {
		return err
	}

	err = c.forward(location, types.EventDeleteFingerprintRequest, types.DeleteFingerprintCommand{
		CourseCode:  course.CourseCode,
		IDsOnSensor: ids,
		RequestedBy: email,
	})
	if err != nil {
		c.resolve(ctx, course.CourseCode, types.EventDeleteFingerprintFeedback)
		return err
	}
	c.awaiting(ctx, ongoing)
	return nil
}

func (c *Coordinator) onDeleteFingerprintResponse(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	resp := p.(*types.DeleteFingerprintResponse)
	requesters := c.resolveRequesters(ctx, conn, resp.Course(), types.EventDeleteFingerprintFeedback, resp.RequestedBy)
	fb, err := c.completeDelete(ctx, resp)
	c.resolve(ctx, resp.Course(), types.EventDeleteFingerprintFeedback)
	c.finish(requesters, types.EventDeleteFingerprintFeedback, fb, err)
}

// completeDelete removes every freed slot's student from the course. A slot
// that is unknown, belongs to a student off the roster or cannot be removed
// is logged and skipped.
func (c *Coordinator) completeDelete(ctx context.Context, resp *types.DeleteFingerprintResponse) (*types.Feedback, error) {
	if resp.Error {
		return nil, fail("Failed to delete fingerprint template", hardwareError(resp.Message))
	}

	course, err := c.store.GetCourseByCode(ctx, resp.Course())
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fail(fmt.Sprintf("Course %s not found", resp.Course()), err)
	}
	if err != nil {
		return nil, err
	}

	logger := log.WithField("course_code", course.CourseCode)
	var removed []string
	for _, slot := range resp.IDs() {
		student, err := c.store.GetStudentByIDOnSensor(ctx, slot)
		if err != nil {
			logger.WithField("id_on_sensor", slot).WithError(err).Warn("skipping freed slot")
			continue
		}
		enrolled, err := c.store.IsEnrolled(ctx, course.ID, student.ID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			logger.WithField("matric_no", student.MatricNo).Warn("skipping freed slot of a student not on roster")
			continue
		}
		deleted, err := c.store.RemoveStudentFromCourse(ctx, course.ID, student.ID)
		if err != nil {
			logger.WithField("matric_no", student.MatricNo).WithError(err).Error("failed to remove student from course")
			continue
		}
		logger.WithFields(log.Fields{
			"matric_no":       student.MatricNo,
			"student_deleted": deleted,
		}).Info("student removed from course")
		removed = append(removed, student.MatricNo)
	}
	if len(removed) == 0 {
		return nil, fail(fmt.Sprintf("No fingerprints were deleted for %s", course.CourseCode), ErrNotEligible)
	}

	roster, err := c.store.ListCourseStudents(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if roster == nil {
		roster = []*types.Student{}
	}

	c.publish(events.SubjectFingerprintsDeleted, events.FingerprintsDeleted{
		CourseCode: course.CourseCode,
		MatricNos:  removed,
		At:         c.now().UTC(),
	})

	return success(
		fmt.Sprintf("Fingerprint and student data for %s deleted successfully", strings.Join(removed, ", ")),
		DeleteResult{Removed: removed, Students: roster},
	), nil
}
