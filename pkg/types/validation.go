package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	courseNumberRegex = regexp.MustCompile(`\d+`)
)

func init() {
	// Report json field names instead of Go field names in validation errors.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// newPayload maps an inbound event to the payload type it carries.
func newPayload(event string) (Payload, bool) {
	switch event {
	case EventIdentify:
		return &IdentifyPayload{}, true
	case EventEnroll:
		return &EnrollRequest{}, true
	case EventEnrollResponse:
		return &EnrollResponse{}, true
	case EventAttendance:
		return &AttendanceRequest{}, true
	case EventAttendanceResponse:
		return &AttendanceResponse{}, true
	case EventDeviceStatus:
		return &DeviceStatusRequest{}, true
	case EventDeviceStatusResponse:
		return &DeviceStatusResponse{}, true
	case EventClearFingerprints:
		return &ClearFingerprintsRequest{}, true
	case EventEmptyFingerprintsResponse:
		return &ClearFingerprintsResponse{}, true
	case EventDeleteFingerprint:
		return &DeleteFingerprintRequest{}, true
	case EventDeleteFingerprintResponse:
		return &DeleteFingerprintResponse{}, true
	default:
		return nil, false
	}
}

// IsKnownEvent reports whether event is accepted inbound.
func IsKnownEvent(event string) bool {
	_, ok := newPayload(event)
	return ok
}

// IsResponseEvent reports whether event is sent by devices.
func IsResponseEvent(event string) bool {
	switch event {
	case EventEnrollResponse, EventAttendanceResponse, EventDeviceStatusResponse,
		EventEmptyFingerprintsResponse, EventDeleteFingerprintResponse:
		return true
	}
	return false
}

// FeedbackEventFor returns the feedback event web clients receive for a
// request or response event.
func FeedbackEventFor(event string) string {
	switch event {
	case EventEnroll, EventEnrollResponse:
		return EventEnrollFeedback
	case EventAttendance, EventAttendanceResponse:
		return EventAttendanceFeedback
	case EventDeviceStatus, EventDeviceStatusResponse:
		return EventDeviceStatusFeedback
	case EventClearFingerprints, EventEmptyFingerprintsResponse:
		return EventClearFingerprintsFeedback
	case EventDeleteFingerprint, EventDeleteFingerprintResponse:
		return EventDeleteFingerprintFeedback
	}
	return ""
}

// DecodePayload decodes and validates the payload of an inbound event.
func DecodePayload(event string, raw json.RawMessage) (Payload, error) {
	p, ok := newPayload(event)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, &ValidationError{Event: event, Err: err}
	}
	return p, nil
}

// ValidationError carries the validator failure for one payload.
type ValidationError struct {
	Event string
	Err   error
}

func (e *ValidationError) Error() string {
	var verrs validator.ValidationErrors
	if errors.As(e.Err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Sprintf("invalid %s payload: %s", e.Event, strings.Join(fields, ", "))
	}
	return fmt.Sprintf("invalid %s payload: %v", e.Event, e.Err)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

// NormalizeClientType canonicalizes a client identity for comparison.
func NormalizeClientType(clientType string) string {
	return strings.ToLower(strings.TrimSpace(clientType))
}

// StudentEmail derives the institutional address for a matric number.
func StudentEmail(matricNo, domain string) string {
	local := strings.ToLower(strings.ReplaceAll(matricNo, "/", "-"))
	return local + "@" + domain
}

// LevelForCourse derives the level from the first digit of the course
// number, e.g. CSC 301 -> 300.
func LevelForCourse(courseCode string) (int, bool) {
	digits := courseNumberRegex.FindString(courseCode)
	if digits == "" {
		return 0, false
	}
	return int(digits[0]-'0') * 100, true
}
