// Package mail renders and delivers the notification emails.
package mail

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

var (
	ErrNoRecipients = errors.New("message has no recipients")
	ErrQueueFull    = errors.New("mail queue is full")
	ErrQueueClosed  = errors.New("mail queue is closed")
)

// Message is one rendered email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SendGridMailer delivers through the SendGrid v3 API.
type SendGridMailer struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ Mailer = (*SendGridMailer)(nil)

// NewSendGridMailer creates a mailer sending as fromName <fromEmail>.
func NewSendGridMailer(key, fromName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		key:        key,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
	}
}

func (svc *SendGridMailer) prepare(msg *Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	return m
}

func (svc *SendGridMailer) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return &DeliveryError{StatusCode: res.StatusCode, Body: res.Body}
	}
	return nil
}

// DeliveryError is returned when SendGrid rejects a message.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Body
}

// LogMailer writes messages to the log instead of sending them and keeps
// them for inspection.
type LogMailer struct {
	mu   sync.Mutex
	sent []Message
}

var _ Mailer = (*LogMailer)(nil)

// NewLogMailer creates an empty log mailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (l *LogMailer) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email")

	l.mu.Lock()
	l.sent = append(l.sent, *msg)
	l.mu.Unlock()
	return nil
}

// Sent returns a copy of the messages seen so far.
func (l *LogMailer) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.sent))
	copy(out, l.sent)
	return out
}
