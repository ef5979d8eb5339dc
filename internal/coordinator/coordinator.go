// Package coordinator implements the device round trips started from the web
// app: enroll, attendance, device status, clear and delete fingerprints.
//
// Every flow has a request half, which validates, picks the target device and
// forwards a command, and a response half, which finds the web user who asked,
// applies the result to the store and sends them the feedback event.
package coordinator

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/events"
	"attendancehub/internal/ledger"
	"attendancehub/internal/mail"
	"attendancehub/internal/notify"
	"attendancehub/internal/router"
	"attendancehub/internal/websocket"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

const genericFailure = "Something went wrong, please try again"

// Scheduler runs a task at a wall-clock time on the event loop.
type Scheduler interface {
	ScheduleAt(at time.Time, name string, task interfaces.Task) error
}

// Notifier runs the missed-attendance pass after a record is stored.
type Notifier interface {
	CheckAndNotify(ctx context.Context, course *types.Course, presentIDs []string) (*notify.Report, error)
}

// Config holds the tunables of the device flows.
type Config struct {
	// RecencyWindow rejects a new attendance window when the course already
	// has a record dated inside it.
	RecencyWindow time.Duration
	// StudentEmailDomain is the domain of institutional student addresses.
	StudentEmailDomain string
	// ClearPhrase confirms a wipe for users without a personal phrase.
	ClearPhrase string
}

// DefaultConfig returns the settings used in production.
func DefaultConfig() Config {
	return Config{
		RecencyWindow:      5 * time.Minute,
		StudentEmailDomain: "students.unilorin.edu.ng",
	}
}

// Dependencies are the collaborators of a Coordinator. Mailer, Events and
// Notifier are optional.
type Dependencies struct {
	Registry  *websocket.Registry
	Store     interfaces.Store
	Ledger    *ledger.Ledger
	Scheduler Scheduler
	Mailer    mail.Mailer
	Events    events.Publisher
	Notifier  Notifier
}

// Coordinator owns the device flows. All of its handlers run on the event
// loop, one at a time.
type Coordinator struct {
	registry  *websocket.Registry
	store     interfaces.Store
	ledger    *ledger.Ledger
	scheduler Scheduler
	mailer    mail.Mailer
	events    events.Publisher
	notifier  Notifier
	config    Config
	now       func() time.Time
}

// New creates a coordinator.
func New(deps Dependencies, config Config) *Coordinator {
	c := &Coordinator{
		registry:  deps.Registry,
		store:     deps.Store,
		ledger:    deps.Ledger,
		scheduler: deps.Scheduler,
		mailer:    deps.Mailer,
		events:    deps.Events,
		notifier:  deps.Notifier,
		config:    config,
		now:       time.Now,
	}
	if c.mailer == nil {
		c.mailer = mail.NewLogMailer()
	}
	if c.events == nil {
		c.events = events.Nop{}
	}
	return c
}

// Register installs every handler on r.
func (c *Coordinator) Register(r *router.Router) {
	r.Handle(types.EventEnroll, c.onEnroll)
	r.Handle(types.EventEnrollResponse, c.onEnrollResponse)
	r.Handle(types.EventAttendance, c.onAttendance)
	r.Handle(types.EventAttendanceResponse, c.onAttendanceResponse)
	r.Handle(types.EventDeviceStatus, c.onDeviceStatus)
	r.Handle(types.EventDeviceStatusResponse, c.onDeviceStatusResponse)
	r.Handle(types.EventClearFingerprints, c.onClearFingerprints)
	r.Handle(types.EventEmptyFingerprintsResponse, c.onEmptyFingerprintsResponse)
	r.Handle(types.EventDeleteFingerprint, c.onDeleteFingerprint)
	r.Handle(types.EventDeleteFingerprintResponse, c.onDeleteFingerprintResponse)
}

// reply sends feedback to every open tab of the given web users.
func (c *Coordinator) reply(requesters []string, event string, fb types.Feedback) {
	msg := types.NewMessage(event, fb)
	delivered := 0
	for _, email := range requesters {
		delivered += c.registry.BroadcastMatching(websocket.ByClient(email, types.SourceWebApp), msg)
	}
	if delivered == 0 {
		log.WithFields(log.Fields{
			"event":      event,
			"requesters": requesters,
		}).Warn("feedback has no connected recipient")
	}
}

// finish turns the outcome of a flow step into feedback. Failures carry the
// message shown to the user; any other error is reported generically.
func (c *Coordinator) finish(requesters []string, event string, fb *types.Feedback, err error) {
	if err == nil {
		c.reply(requesters, event, *fb)
		return
	}

	logger := log.WithFields(log.Fields{"event": event, "requesters": requesters})
	message := genericFailure
	var failure *Failure
	if errors.As(err, &failure) {
		message = failure.Message
		logger.WithError(err).Info("device flow refused")
	} else {
		logger.WithError(err).Error("device flow failed")
	}
	c.reply(requesters, event, types.Feedback{Error: true, Message: message})
}

func success(message string, data interface{}) *types.Feedback {
	return &types.Feedback{Error: false, Message: message, Data: data}
}

// resolveRequesters finds who should receive the feedback for a device
// response: the ledger entry for the course, then the user the device echoed,
// then every user bound to the responding device.
func (c *Coordinator) resolveRequesters(ctx context.Context, device interfaces.Connection, courseCode, feedbackEvent, requestedBy string) []string {
	logger := log.WithFields(log.Fields{
		"device_location": device.ClientType(),
		"course_code":     courseCode,
		"feedback":        feedbackEvent,
	})

	if courseCode != "" {
		req, err := c.ledger.Find(ctx, courseCode, feedbackEvent)
		switch {
		case err == nil:
			return []string{req.Email}
		case !errors.Is(err, interfaces.ErrNotFound):
			logger.WithError(err).Error("failed to look up ongoing request")
		}
	}

	if requestedBy != "" {
		return []string{types.NormalizeClientType(requestedBy)}
	}

	emails, err := c.store.EmailsForDeviceLocation(ctx, device.ClientType())
	if err != nil {
		logger.WithError(err).Error("failed to look up device bindings")
		return nil
	}
	if len(emails) == 0 {
		logger.Warn("no requester found for device response")
	}
	return emails
}

// resolve removes the ledger entry of a finished round trip.
func (c *Coordinator) resolve(ctx context.Context, courseCode, feedbackEvent string) {
	if courseCode == "" {
		return
	}
	if err := c.ledger.Delete(ctx, courseCode, feedbackEvent); err != nil {
		log.WithError(err).Error("failed to resolve ongoing request")
	}
}

// targetDevice picks the device a web request goes to: the location named in
// the request, else the one bound to the user. The device must be connected.
func (c *Coordinator) targetDevice(ctx context.Context, email, location string) (string, error) {
	if location == "" {
		bound, err := c.store.GetLecturerDeviceLocation(ctx, email)
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", fail("No device location is set for your account", ErrNoDevice)
		}
		if err != nil {
			return "", err
		}
		location = bound
	}
	location = types.NormalizeClientType(location)

	if !c.registry.HasClient(websocket.ByClient(location, types.SourceHardware)) {
		return "", fail("The device at "+location+" is not connected", ErrDeviceOffline)
	}
	return location, nil
}

// forward sends a command to the device at location.
func (c *Coordinator) forward(location, event string, command interface{}) error {
	n := c.registry.BroadcastMatching(websocket.ByClient(location, types.SourceHardware), types.NewMessage(event, command))
	if n == 0 {
		return fail("The device at "+location+" is not connected", ErrDeviceOffline)
	}
	log.WithFields(log.Fields{
		"event":           event,
		"device_location": location,
	}).Info("command forwarded to device")
	return nil
}

// open records an ongoing request for a round trip about to be forwarded.
// The entry is held at least until holdUntil; pass the zero time for round
// trips the device answers at once.
func (c *Coordinator) open(ctx context.Context, email, courseCode, feedbackEvent, what string, holdUntil time.Time) (*types.OngoingRequest, error) {
	req, err := c.ledger.CreateUntil(ctx, email, courseCode, feedbackEvent, holdUntil)
	if errors.Is(err, ledger.ErrRequestInFlight) {
		return nil, fail("Another "+what+" request for "+courseCode+" is still in progress", err)
	}
	return req, err
}

// awaiting marks a forwarded request. A failure here only loses the state
// label, the entry itself still routes the response.
func (c *Coordinator) awaiting(ctx context.Context, req *types.OngoingRequest) {
	if err := c.ledger.MarkAwaiting(ctx, req); err != nil {
		log.WithError(err).Warn("failed to mark ongoing request")
	}
}

func (c *Coordinator) publish(subject string, event interface{}) {
	if err := c.events.Publish(subject, event); err != nil {
		log.WithField("subject", subject).WithError(err).Warn("failed to publish event")
	}
}

func (c *Coordinator) sendMail(ctx context.Context, msg *mail.Message, err error) {
	if err == nil {
		err = c.mailer.Send(ctx, msg)
	}
	if err != nil {
		log.WithError(err).Error("failed to send email")
	}
}
