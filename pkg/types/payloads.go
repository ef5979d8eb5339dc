package types

import (
	"time"
)

// Payload is the closed set of decoded inbound payloads.
type Payload interface {
	isPayload()
}

// IdentifyPayload declares who is on the other end of a connection.
type IdentifyPayload struct {
	ClientType string `json:"clientType" validate:"required,max=254"`
	Source     string `json:"source" validate:"required,oneof=web_app hardware"`
}

// EnrollRequest asks a device to capture a new fingerprint.
type EnrollRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	MatricNo       string `json:"matricNo" validate:"required,max=50"`
	CourseCode     string `json:"courseCode" validate:"required,max=20"`
	CourseName     string `json:"courseName,omitempty" validate:"max=200"`
	LecturerEmail  string `json:"lecturerEmail,omitempty" validate:"omitempty,email"`
	DeviceLocation string `json:"deviceLocation,omitempty"`
}

// EnrollResponse is the device answer to an enroll request.
type EnrollResponse struct {
	Error           bool   `json:"error"`
	Message         string `json:"message,omitempty"`
	Name            string `json:"name"`
	MatricNo        string `json:"matricNo" validate:"required"`
	CourseCode      string `json:"courseCode" validate:"required"`
	IDOnSensor      *int64 `json:"idOnSensor,omitempty"`
	FingerprintHash string `json:"fingerprintHash,omitempty"`
	RequestedBy     string `json:"requestedBy,omitempty"`
}

// AttendanceRequest opens an attendance window on a device.
type AttendanceRequest struct {
	CourseCode     string    `json:"courseCode" validate:"required,max=20"`
	StartTime      time.Time `json:"startTime" validate:"required"`
	EndTime        time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	DeviceLocation string    `json:"deviceLocation,omitempty"`
}

// Tap is one fingerprint match reported by a device.
type Tap struct {
	IDOnSensor *int64 `json:"idOnSensor"`
	Time       string `json:"time"`
}

// AttendanceData is the record a device uploads when a window closes.
type AttendanceData struct {
	CourseCode string `json:"courseCode"`
	Date       string `json:"date"`
	Students   []Tap  `json:"students"`
	Message    string `json:"message,omitempty"`
}

// AttendanceDownloaded is the message a device sends once it has loaded the
// enrolled slots for a window. The record itself follows when the window
// closes.
const AttendanceDownloaded = "Downloaded successfully"

// Downloaded reports whether the data only acknowledges the download.
func (d AttendanceData) Downloaded() bool {
	return d.Message == AttendanceDownloaded
}

// AttendanceResponse accepts both the flat and the nested {data: ...} shapes.
type AttendanceResponse struct {
	Error       bool            `json:"error"`
	Message     string          `json:"message,omitempty"`
	CourseCode  string          `json:"courseCode,omitempty"`
	Date        string          `json:"date,omitempty"`
	Students    []Tap           `json:"students,omitempty"`
	Data        *AttendanceData `json:"data,omitempty"`
	RequestedBy string          `json:"requestedBy,omitempty"`
}

// Record returns the uploaded record regardless of shape.
func (r *AttendanceResponse) Record() AttendanceData {
	if r.Data != nil {
		return *r.Data
	}
	return AttendanceData{CourseCode: r.CourseCode, Date: r.Date, Students: r.Students}
}

// DeviceStatusRequest asks a device for its telemetry.
type DeviceStatusRequest struct {
	DeviceLocation string `json:"deviceLocation,omitempty"`
}

// DeviceStatusResponse is the telemetry a device reports.
type DeviceStatusResponse struct {
	Error                 bool    `json:"error"`
	Message               string  `json:"message,omitempty"`
	BatteryCapacity       string  `json:"batteryCapacity,omitempty"`
	BatteryPercentage     float64 `json:"batteryPercentage"`
	IsConnectedToInternet bool    `json:"isConnectedToInternet"`
	IsCharging            bool    `json:"isCharging"`
	IsFingerprintActive   bool    `json:"isFingerprintActive"`
	Location              string  `json:"location,omitempty"`
	RequestedBy           string  `json:"requestedBy,omitempty"`
}

// ClearFingerprintsRequest asks a device to wipe its sensor.
type ClearFingerprintsRequest struct {
	Phrase         string `json:"phrase" validate:"required"`
	DeviceLocation string `json:"deviceLocation,omitempty"`
}

// ClearFingerprintsResponse confirms or refuses a wipe.
type ClearFingerprintsResponse struct {
	Error       bool   `json:"error"`
	Message     string `json:"message,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// DeleteFingerprintRequest removes one or more students from a course and
// their templates from the sensor.
type DeleteFingerprintRequest struct {
	CourseCode     string   `json:"courseCode" validate:"required,max=20"`
	MatricNo       string   `json:"matricNo,omitempty" validate:"required_without=MatricNos"`
	MatricNos      []string `json:"matricNos,omitempty" validate:"required_without=MatricNo,dive,required"`
	DeviceLocation string   `json:"deviceLocation,omitempty"`
}

// Targets returns the distinct matric numbers named by the request.
func (r *DeleteFingerprintRequest) Targets() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	add(r.MatricNo)
	for _, m := range r.MatricNos {
		add(m)
	}
	return out
}

// DeleteFingerprintResponse lists the sensor slots a device actually freed.
// Both the flat and the nested {data: ...} shapes are accepted.
type DeleteFingerprintResponse struct {
	Error       bool                   `json:"error"`
	Message     string                 `json:"message,omitempty"`
	CourseCode  string                 `json:"courseCode"`
	IDOnSensor  *int64                 `json:"idOnSensor,omitempty"`
	IDsOnSensor []int64                `json:"idsOnSensor,omitempty"`
	Data        *DeleteFingerprintData `json:"data,omitempty"`
	RequestedBy string                 `json:"requestedBy,omitempty"`
}

// DeleteFingerprintData is the nested form of a delete confirmation.
type DeleteFingerprintData struct {
	CourseCode  string  `json:"courseCode"`
	IDOnSensor  *int64  `json:"idOnSensor,omitempty"`
	IDsOnSensor []int64 `json:"idsOnSensor,omitempty"`
}

// Course returns the course code regardless of shape.
func (r *DeleteFingerprintResponse) Course() string {
	if r.CourseCode == "" && r.Data != nil {
		return r.Data.CourseCode
	}
	return r.CourseCode
}

// IDs merges the single and batch forms of the freed slots from both shapes.
func (r *DeleteFingerprintResponse) IDs() []int64 {
	ids := append([]int64(nil), r.IDsOnSensor...)
	if r.IDOnSensor != nil {
		ids = append(ids, *r.IDOnSensor)
	}
	if r.Data != nil {
		ids = append(ids, r.Data.IDsOnSensor...)
		if r.Data.IDOnSensor != nil {
			ids = append(ids, *r.Data.IDOnSensor)
		}
	}
	return ids
}

func (*IdentifyPayload) isPayload()           {}
func (*EnrollRequest) isPayload()             {}
func (*EnrollResponse) isPayload()            {}
func (*AttendanceRequest) isPayload()         {}
func (*AttendanceResponse) isPayload()        {}
func (*DeviceStatusRequest) isPayload()       {}
func (*DeviceStatusResponse) isPayload()      {}
func (*ClearFingerprintsRequest) isPayload()  {}
func (*ClearFingerprintsResponse) isPayload() {}
func (*DeleteFingerprintRequest) isPayload()  {}
func (*DeleteFingerprintResponse) isPayload() {}

// Commands forwarded to devices. Every command carries the web user that
// asked so a device can echo it back in its response.

// EnrollCommand is forwarded as the enroll event.
type EnrollCommand struct {
	Name        string `json:"name"`
	MatricNo    string `json:"matricNo"`
	CourseCode  string `json:"courseCode"`
	RequestedBy string `json:"requestedBy"`
}

// AttendanceCommand opens an attendance window on a device.
type AttendanceCommand struct {
	CourseCode         string  `json:"courseCode"`
	StartTime          string  `json:"startTime"`
	EndTime            string  `json:"endTime"`
	EnrolledStudentsID []int64 `json:"enrolledStudentsId"`
	RequestedBy        string  `json:"requestedBy"`
}

// DeviceStatusCommand asks a device for its telemetry.
type DeviceStatusCommand struct {
	RequestedBy string `json:"requestedBy"`
}

// EmptyFingerprintsCommand asks a device to wipe its sensor.
type EmptyFingerprintsCommand struct {
	Message     string `json:"message"`
	RequestedBy string `json:"requestedBy"`
}

// DeleteFingerprintCommand lists the sensor slots a device should free.
type DeleteFingerprintCommand struct {
	CourseCode  string  `json:"courseCode"`
	IDsOnSensor []int64 `json:"idsOnSensor"`
	RequestedBy string  `json:"requestedBy"`
}

// DeviceStatus is the telemetry relayed to web users.
type DeviceStatus struct {
	Location              string  `json:"location"`
	BatteryCapacity       string  `json:"batteryCapacity,omitempty"`
	BatteryPercentage     float64 `json:"batteryPercentage"`
	IsConnectedToInternet bool    `json:"isConnectedToInternet"`
	IsCharging            bool    `json:"isCharging"`
	IsFingerprintActive   bool    `json:"isFingerprintActive"`
}
