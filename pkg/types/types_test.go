package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodePayload_Identify(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"web app", `{"clientType":"Lecturer@Unilorin.edu.ng","source":"web_app"}`, false},
		{"hardware", `{"clientType":"ROOM-A","source":"hardware"}`, false},
		{"missing client type", `{"source":"hardware"}`, true},
		{"unknown source", `{"clientType":"x","source":"mobile"}`, true},
		{"empty payload", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload(EventIdentify, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("expected ErrInvalidPayload, got %v", err)
				}
				return
			}
			if _, ok := p.(*IdentifyPayload); !ok {
				t.Errorf("expected *IdentifyPayload, got %T", p)
			}
		})
	}
}

func TestDecodePayload_UnknownEvent(t *testing.T) {
	_, err := DecodePayload("reboot", json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	_, err := DecodePayload(EventEnroll, json.RawMessage(`{"name":`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodePayload_ValidationErrorNamesJSONFields(t *testing.T) {
	_, err := DecodePayload(EventEnroll, json.RawMessage(`{"name":"Ada"}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	msg := verr.Error()
	if !strings.Contains(msg, "matricNo") || !strings.Contains(msg, "courseCode") {
		t.Errorf("validation message should name json fields, got %q", msg)
	}
}

func TestDecodePayload_AttendanceWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	ok := `{"courseCode":"CSC301","startTime":"` + start.Format(time.RFC3339) +
		`","endTime":"` + start.Add(time.Hour).Format(time.RFC3339) + `"}`
	p, err := DecodePayload(EventAttendance, json.RawMessage(ok))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := p.(*AttendanceRequest)
	if !req.StartTime.Equal(start) {
		t.Errorf("start time = %v, want %v", req.StartTime, start)
	}

	inverted := `{"courseCode":"CSC301","startTime":"` + start.Format(time.RFC3339) +
		`","endTime":"` + start.Add(-time.Hour).Format(time.RFC3339) + `"}`
	if _, err := DecodePayload(EventAttendance, json.RawMessage(inverted)); err == nil {
		t.Error("expected error when endTime precedes startTime")
	}
}

func TestDecodePayload_DeleteFingerprintTargets(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"single", `{"courseCode":"CSC301","matricNo":"19/52HA001"}`, []string{"19/52HA001"}, false},
		{"batch with duplicate", `{"courseCode":"CSC301","matricNo":"A","matricNos":["A","B"]}`, []string{"A", "B"}, false},
		{"neither", `{"courseCode":"CSC301"}`, nil, true},
		{"blank entry", `{"courseCode":"CSC301","matricNos":["A",""]}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload(EventDeleteFingerprint, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got := p.(*DeleteFingerprintRequest).Targets()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Targets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttendanceResponse_RecordShapes(t *testing.T) {
	flat := `{"courseCode":"CSC301","date":"2026-03-02T09:00:00Z","students":[{"idOnSensor":4,"time":"09:03"}]}`
	nested := `{"data":{"courseCode":"CSC301","date":"2026-03-02T09:00:00Z","students":[{"idOnSensor":4,"time":"09:03"}]}}`

	for name, raw := range map[string]string{"flat": flat, "nested": nested} {
		t.Run(name, func(t *testing.T) {
			p, err := DecodePayload(EventAttendanceResponse, json.RawMessage(raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rec := p.(*AttendanceResponse).Record()
			if rec.CourseCode != "CSC301" || len(rec.Students) != 1 || *rec.Students[0].IDOnSensor != 4 {
				t.Errorf("unexpected record: %+v", rec)
			}
		})
	}
}

func TestAttendanceResponse_Downloaded(t *testing.T) {
	raw := `{"error":false,"data":{"courseCode":"CSC301","message":"Downloaded successfully"}}`
	p, err := DecodePayload(EventAttendanceResponse, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := p.(*AttendanceResponse).Record()
	if !rec.Downloaded() || rec.CourseCode != "CSC301" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if (AttendanceData{CourseCode: "CSC301", Date: "2026-03-02"}).Downloaded() {
		t.Error("a record upload is not a download acknowledgement")
	}
}

func TestDeleteFingerprintResponse_IDs(t *testing.T) {
	one := int64(7)
	r := DeleteFingerprintResponse{IDOnSensor: &one, IDsOnSensor: []int64{2, 3}}
	ids := r.IDs()
	if len(ids) != 3 || ids[2] != 7 {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestDeleteFingerprintResponse_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ids  []int64
	}{
		{"flat single", `{"error":false,"courseCode":"CSC301","idOnSensor":4}`, []int64{4}},
		{"flat batch", `{"courseCode":"CSC301","idsOnSensor":[4,5]}`, []int64{4, 5}},
		{"nested single", `{"error":false,"data":{"idOnSensor":4,"courseCode":"CSC301"}}`, []int64{4}},
		{"nested batch", `{"data":{"idsOnSensor":[4,5],"courseCode":"CSC301"}}`, []int64{4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload(EventDeleteFingerprintResponse, json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			r := p.(*DeleteFingerprintResponse)
			if r.Course() != "CSC301" {
				t.Errorf("Course() = %q", r.Course())
			}
			ids := r.IDs()
			if len(ids) != len(tt.ids) {
				t.Fatalf("IDs() = %v, want %v", ids, tt.ids)
			}
			for i := range ids {
				if ids[i] != tt.ids[i] {
					t.Errorf("IDs() = %v, want %v", ids, tt.ids)
				}
			}
		})
	}
}

func TestFeedbackEventFor(t *testing.T) {
	pairs := map[string]string{
		EventEnroll:                    EventEnrollFeedback,
		EventAttendanceResponse:        EventAttendanceFeedback,
		EventDeviceStatus:              EventDeviceStatusFeedback,
		EventEmptyFingerprintsResponse: EventClearFingerprintsFeedback,
		EventDeleteFingerprint:         EventDeleteFingerprintFeedback,
		EventIdentify:                  "",
	}
	for in, want := range pairs {
		if got := FeedbackEventFor(in); got != want {
			t.Errorf("FeedbackEventFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsResponseEvent(t *testing.T) {
	if !IsResponseEvent(EventEnrollResponse) {
		t.Error("enroll_response should be a response event")
	}
	if IsResponseEvent(EventEnroll) {
		t.Error("enroll should not be a response event")
	}
}

func TestStudentEmail(t *testing.T) {
	got := StudentEmail("19/52HA001", "students.unilorin.edu.ng")
	if got != "19-52ha001@students.unilorin.edu.ng" {
		t.Errorf("StudentEmail() = %q", got)
	}
}

func TestLevelForCourse(t *testing.T) {
	tests := []struct {
		code  string
		level int
		ok    bool
	}{
		{"CSC301", 300, true},
		{"MTH 101", 100, true},
		{"GNS", 0, false},
	}
	for _, tt := range tests {
		level, ok := LevelForCourse(tt.code)
		if level != tt.level || ok != tt.ok {
			t.Errorf("LevelForCourse(%q) = %d, %v; want %d, %v", tt.code, level, ok, tt.level, tt.ok)
		}
	}
}

func TestOngoingRequest_Expired(t *testing.T) {
	now := time.Now()
	r := OngoingRequest{ExpiresAt: now.Add(time.Minute)}
	if r.Expired(now) {
		t.Error("request should not be expired before its deadline")
	}
	if !r.Expired(now.Add(time.Minute)) {
		t.Error("request should be expired at its deadline")
	}
}

func TestNormalizeClientType(t *testing.T) {
	if got := NormalizeClientType("  Room-A "); got != "room-a" {
		t.Errorf("NormalizeClientType() = %q", got)
	}
}
