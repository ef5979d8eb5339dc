package types

import (
	"encoding/json"
	"time"
)

// Wire events. Web clients send the request events, devices receive the
// forwarded request events and reply with the matching response events, and
// the requester receives the feedback event.
const (
	EventIdentify = "identify"

	EventEnroll         = "enroll"
	EventEnrollRequest  = "enroll"
	EventEnrollResponse = "enroll_response"
	EventEnrollFeedback = "enroll_feedback"

	EventAttendance         = "attendance"
	EventAttendanceRequest  = "attendance_request"
	EventAttendanceResponse = "attendance_response"
	EventAttendanceFeedback = "attendance_feedback"

	EventDeviceStatus         = "esp32_data"
	EventDeviceStatusRequest  = "esp32_data_request"
	EventDeviceStatusResponse = "esp32_data_response"
	EventDeviceStatusFeedback = "esp32_data_feedback"

	EventClearFingerprints         = "clear_fingerprints"
	EventEmptyFingerprintsRequest  = "empty_fingerprints_request"
	EventEmptyFingerprintsResponse = "empty_fingerprints_response"
	EventClearFingerprintsFeedback = "clear_fingerprints_feedback"

	EventDeleteFingerprint         = "delete_fingerprint"
	EventDeleteFingerprintRequest  = "delete_fingerprint_request"
	EventDeleteFingerprintResponse = "delete_fingerprint_response"
	EventDeleteFingerprintFeedback = "delete_fingerprint_feedback"
)

// Connection sources declared in the identify payload.
const (
	SourceWebApp   = "web_app"
	SourceHardware = "hardware"
)

// Student lifecycle. A student is pending between the enroll request and the
// device confirmation.
const (
	StudentPending = "pending"
	StudentActive  = "active"
)

// Ongoing request states.
const (
	RequestRequested        = "requested"
	RequestAwaitingHardware = "awaiting_hardware"
)

// RawMessage is an inbound envelope with the payload left undecoded.
type RawMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is an outbound envelope.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// NewMessage builds an outbound envelope.
func NewMessage(event string, payload interface{}) *Message {
	return &Message{Event: event, Payload: payload}
}

// Feedback is the payload of every *_feedback event.
type Feedback struct {
	Error   bool        `json:"error"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Lecturer owns courses and receives attendance reports.
type Lecturer struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// LevelAdviser receives missed-attendance reports for one level and may hold
// a personal clear phrase.
type LevelAdviser struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	Level           int       `json:"level" db:"level"`
	ClearPhraseHash string    `json:"-" db:"clear_phrase_hash"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// Course groups enrolled students and attendance records.
type Course struct {
	ID         string    `json:"id" db:"id"`
	CourseCode string    `json:"courseCode" db:"course_code"`
	CourseName string    `json:"courseName" db:"course_name"`
	LecturerID *string   `json:"lecturerId,omitempty" db:"lecturer_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Student is identified by matric number and, once enrolled on a device, by
// the slot id the sensor assigned.
type Student struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	MatricNo        string    `json:"matricNo" db:"matric_no"`
	IDOnSensor      *int64    `json:"idOnSensor,omitempty" db:"id_on_sensor"`
	FingerprintHash string    `json:"fingerprintHash,omitempty" db:"fingerprint_hash"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// Presence is one student's tap inside an attendance record.
type Presence struct {
	StudentID string `json:"studentId" db:"student_id"`
	MatricNo  string `json:"matricNo,omitempty" db:"matric_no"`
	Name      string `json:"name,omitempty" db:"name"`
	Time      string `json:"time" db:"time"`
}

// Attendance is one class meeting of a course.
type Attendance struct {
	ID              string     `json:"id" db:"id"`
	CourseID        string     `json:"courseId" db:"course_id"`
	CourseCode      string     `json:"courseCode" db:"course_code"`
	Date            time.Time  `json:"date" db:"date"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	StudentsPresent []Presence `json:"studentsPresent" db:"-"`
}

// DeviceConnection records every device location that ever identified.
type DeviceConnection struct {
	ID             string    `json:"id" db:"id"`
	DeviceLocation string    `json:"deviceLocation" db:"device_location"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// LecturerDeviceLocation binds a web user to the device they operate.
type LecturerDeviceLocation struct {
	Email          string    `json:"email" db:"email"`
	DeviceLocation string    `json:"deviceLocation" db:"device_location"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// OngoingRequest correlates a device response with the web user who asked.
type OngoingRequest struct {
	ID                string    `json:"id" db:"id"`
	Email             string    `json:"email" db:"email"`
	CourseCode        string    `json:"courseCode" db:"course_code"`
	EventFeedbackName string    `json:"eventFeedbackName" db:"event_feedback_name"`
	State             string    `json:"state" db:"state"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt         time.Time `json:"expiresAt" db:"expires_at"`
}

// Expired reports whether the request outlived its deadline at now.
func (r *OngoingRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
