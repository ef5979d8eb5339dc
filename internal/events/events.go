// Package events publishes domain events for other services.
package events

import (
	"encoding/json"
	"sync"
	"time"

	nats "github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Subjects, relative to the publisher prefix.
const (
	SubjectEnrollmentCompleted = "enrollment.completed"
	SubjectAttendanceRecorded  = "attendance.recorded"
	SubjectFingerprintsCleared = "fingerprints.cleared"
	SubjectFingerprintsDeleted = "fingerprints.deleted"
)

// EnrollmentCompleted is published when a device confirms an enrollment.
type EnrollmentCompleted struct {
	MatricNo   string    `json:"matricNo"`
	CourseCode string    `json:"courseCode"`
	IDOnSensor int64     `json:"idOnSensor"`
	At         time.Time `json:"at"`
}

// AttendanceRecorded is published when an attendance record is stored.
type AttendanceRecorded struct {
	CourseCode string    `json:"courseCode"`
	Date       time.Time `json:"date"`
	Present    int       `json:"present"`
}

// FingerprintsCleared is published after a device wipe was archived.
type FingerprintsCleared struct {
	DeviceLocation string    `json:"deviceLocation"`
	RequestedBy    string    `json:"requestedBy"`
	At             time.Time `json:"at"`
}

// FingerprintsDeleted is published when a device frees sensor slots for a
// course.
type FingerprintsDeleted struct {
	CourseCode string    `json:"courseCode"`
	MatricNos  []string  `json:"matricNos"`
	At         time.Time `json:"at"`
}

// Publisher sends domain events.
type Publisher interface {
	Publish(subject string, event interface{}) error
	Close() error
}

// NATSPublisher publishes JSON events to NATS under a subject prefix.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("attendancehub"))
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) subject(s string) string {
	if p.prefix == "" {
		return s
	}
	return p.prefix + "." + s
}

func (p *NATSPublisher) Publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject(subject), data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(string, interface{}) error { return nil }
func (Nop) Close() error                      { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one event seen by a Recorder.
type Recorded struct {
	Subject string
	Event   interface{}
}

var _ Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(subject string, event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Subject: subject, Event: event})
	log.WithField("subject", subject).Debug("event recorded")
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Subjects returns the published subjects in order.
func (r *Recorder) Subjects() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Subject)
	}
	return out
}
