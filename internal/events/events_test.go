package events

import (
	"testing"
	"time"
)

func TestNATSPublisherSubject(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "attendance.recorded"},
		{"attendancehub", "attendancehub.attendance.recorded"},
	}
	for _, tt := range tests {
		p := &NATSPublisher{prefix: tt.prefix}
		if got := p.subject(SubjectAttendanceRecorded); got != tt.want {
			t.Errorf("prefix %q: expected %q, got %q", tt.prefix, tt.want, got)
		}
	}
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	if _, err := NewNATSPublisher("nats://127.0.0.1:1", "x"); err == nil {
		t.Error("Expected connection error for unreachable server")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	var p Publisher = r

	_ = p.Publish(SubjectEnrollmentCompleted, EnrollmentCompleted{MatricNo: "19/52HL001", At: time.Now()})
	_ = p.Publish(SubjectAttendanceRecorded, AttendanceRecorded{CourseCode: "CSC 301", Present: 3})

	subjects := r.Subjects()
	if len(subjects) != 2 || subjects[0] != SubjectEnrollmentCompleted || subjects[1] != SubjectAttendanceRecorded {
		t.Errorf("Unexpected subjects %v", subjects)
	}
	ev, ok := r.Events()[1].Event.(AttendanceRecorded)
	if !ok || ev.Present != 3 {
		t.Errorf("Unexpected event %+v", r.Events()[1].Event)
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish("x", struct{}{}); err != nil {
		t.Errorf("Nop publish failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Nop close failed: %v", err)
	}
}
