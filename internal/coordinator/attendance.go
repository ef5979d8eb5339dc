package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/events"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

// Layouts accepted for dates reported by devices, tried in order.
var deviceTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDeviceTime(s string) (time.Time, error) {
	for _, layout := range deviceTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func (c *Coordinator) onAttendance(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	email := conn.ClientType()
	fb, err := c.requestAttendance(ctx, email, p.(*types.AttendanceRequest))
	if err != nil {
		c.finish([]string{email}, types.EventAttendanceFeedback, nil, err)
		return
	}
	if fb != nil {
		c.reply([]string{email}, types.EventAttendanceFeedback, *fb)
	}
}

// requestAttendance opens the attendance window now, or schedules it when
// the window starts in the future. Scheduling is acknowledged right away.
func (c *Coordinator) requestAttendance(ctx context.Context, email string, req *types.AttendanceRequest) (*types.Feedback, error) {
	if _, err := c.store.GetCourseByCode(ctx, req.CourseCode); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, fail("Course not found", err)
		}
		return nil, err
	}

	if !req.StartTime.After(c.now()) {
		return nil, c.startAttendance(ctx, email, req)
	}

	name := fmt.Sprintf("attendance %s at %s", req.CourseCode, req.StartTime.UTC().Format(time.RFC3339))
	task := func(ctx context.Context) {
		if err := c.startAttendance(ctx, email, req); err != nil {
			c.finish([]string{email}, types.EventAttendanceFeedback, nil, err)
		}
	}
	if err := c.scheduler.ScheduleAt(req.StartTime, name, task); err != nil {
		return nil, err
	}

	return success(
		fmt.Sprintf("Attendance for %s scheduled to start at %s", req.CourseCode, req.StartTime.UTC().Format(time.RFC3339)),
		map[string]interface{}{"scheduled": true, "startTime": req.StartTime.UTC(), "endTime": req.EndTime.UTC()},
	), nil
}

// startAttendance checks the course can take attendance and sends the
// window with the enrolled sensor slots to the device.
func (c *Coordinator) startAttendance(ctx context.Context, email string, req *types.AttendanceRequest) error {
	course, err := c.store.GetCourseByCode(ctx, req.CourseCode)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fail("Course not found", err)
	}
	if err != nil {
		return err
	}

	latest, err := c.store.LatestAttendance(ctx, course.ID)
	switch {
	case err == nil:
		if !latest.Date.Before(c.now().Add(-c.config.RecencyWindow)) {
			return fail(fmt.Sprintf("Attendance has already been marked for %s today", course.CourseCode), ErrNotEligible)
		}
	case !errors.Is(err, interfaces.ErrNotFound):
		return err
	}

	students, err := c.store.ListCourseStudents(ctx, course.ID)
	if err != nil {
		return err
	}
	var ids []int64
	for _, s := range students {
		if s.Status == types.StudentActive && s.IDOnSensor != nil {
			ids = append(ids, *s.IDOnSensor)
		}
	}
	if len(ids) == 0 {
		return fail(fmt.Sprintf("No student is enrolled for %s", course.CourseCode), ErrNotEligible)
	}

	location, err := c.targetDevice(ctx, email, req.DeviceLocation)
	if err != nil {
		return err
	}

	ongoing, err := c.open(ctx, email, course.CourseCode, types.EventAttendanceFeedback, "attendance", req.EndTime)
	if err != nil {
		return err
	}

	err = c.forward(location, types.EventAttendanceRequest, types.AttendanceCommand{
		CourseCode:         course.CourseCode,
		StartTime:          req.StartTime.UTC().Format(time.RFC3339),
		EndTime:            req.EndTime.UTC().Format(time.RFC3339),
		EnrolledStudentsID: ids,
		RequestedBy:        email,
	})
	if err != nil {
		c.resolve(ctx, course.CourseCode, types.EventAttendanceFeedback)
		return err
	}
	c.awaiting(ctx, ongoing)
	return nil
}

func (c *Coordinator) onAttendanceResponse(ctx context.Context, conn interfaces.Connection, p types.Payload) {
	resp := p.(*types.AttendanceResponse)
	record := resp.Record()
	requesters := c.resolveRequesters(ctx, conn, record.CourseCode, types.EventAttendanceFeedback, resp.RequestedBy)
	if !resp.Error && record.Downloaded() {
		// The window stays open, so the ledger entry is kept for the upload.
		c.reply(requesters, types.EventAttendanceFeedback, *success(record.CourseCode+" data downloaded successfully", nil))
		return
	}
	fb, err := c.completeAttendance(ctx, resp.Error, resp.Message, record)
	c.resolve(ctx, record.CourseCode, types.EventAttendanceFeedback)
	c.finish(requesters, types.EventAttendanceFeedback, fb, err)
}

// completeAttendance stores the uploaded record. Taps are deduplicated by
// sensor slot; unknown slots and students not on the roster are skipped.
func (c *Coordinator) completeAttendance(ctx context.Context, deviceError bool, deviceMessage string, record types.AttendanceData) (*types.Feedback, error) {
	if deviceError {
		return nil, fail("Attendance not taken successfully", hardwareError(deviceMessage))
	}
	if record.CourseCode == "" {
		return nil, fail("Attendance record has no course code", ErrNotEligible)
	}

	course, err := c.store.GetCourseByCode(ctx, record.CourseCode)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fail(fmt.Sprintf("Course %s not found", record.CourseCode), err)
	}
	if err != nil {
		return nil, err
	}

	date, err := parseDeviceTime(record.Date)
	if err != nil {
		return nil, fail(fmt.Sprintf("Attendance record for %s has an invalid date", course.CourseCode), err)
	}
	alreadyMarked := fail(fmt.Sprintf("Attendance has already been marked for %s at %s", course.CourseCode, record.Date), ErrNotEligible)

	exists, err := c.store.AttendanceExists(ctx, course.ID, date)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, alreadyMarked
	}

	logger := log.WithField("course_code", course.CourseCode)
	seen := make(map[int64]bool)
	var present []types.Presence
	for _, tap := range record.Students {
		if tap.IDOnSensor == nil || seen[*tap.IDOnSensor] {
			continue
		}
		slot := *tap.IDOnSensor
		seen[slot] = true

		student, err := c.store.GetStudentByIDOnSensor(ctx, slot)
		if errors.Is(err, interfaces.ErrNotFound) {
			logger.WithField("id_on_sensor", slot).Warn("skipping tap from unknown sensor slot")
			continue
		}
		if err != nil {
			return nil, err
		}
		enrolled, err := c.store.IsEnrolled(ctx, course.ID, student.ID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			logger.WithField("matric_no", student.MatricNo).Warn("skipping tap from student not on roster")
			continue
		}

		present = append(present, types.Presence{
			StudentID: student.ID,
			MatricNo:  student.MatricNo,
			Name:      student.Name,
			Time:      tap.Time,
		})
	}
	if len(present) == 0 {
		return nil, fail(fmt.Sprintf("No valid students found for course %s", course.CourseCode), ErrNotEligible)
	}

	attendance := &types.Attendance{
		CourseID:        course.ID,
		CourseCode:      course.CourseCode,
		Date:            date,
		StudentsPresent: present,
	}
	if err := c.store.CreateAttendance(ctx, attendance); err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			return nil, alreadyMarked
		}
		return nil, err
	}
	logger.WithField("present", len(present)).Info("attendance recorded")

	if c.notifier != nil {
		ids := make([]string, 0, len(present))
		for _, p := range present {
			ids = append(ids, p.StudentID)
		}
		if _, err := c.notifier.CheckAndNotify(ctx, course, ids); err != nil {
			logger.WithError(err).Error("missed attendance check failed")
		}
	}
	c.publish(events.SubjectAttendanceRecorded, events.AttendanceRecorded{
		CourseCode: course.CourseCode,
		Date:       attendance.Date,
		Present:    len(present),
	})

	return success(fmt.Sprintf("Attendance record for %s has been saved successfully", course.CourseCode), attendance), nil
}
