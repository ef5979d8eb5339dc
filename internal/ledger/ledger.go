package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

// Store is the persistence the ledger needs.
type Store interface {
	CreateOngoingRequest(ctx context.Context, req *types.OngoingRequest) error
	FindOngoingRequest(ctx context.Context, courseCode, eventFeedbackName string, now time.Time) (*types.OngoingRequest, error)
	UpdateOngoingRequestState(ctx context.Context, id, state string) error
	DeleteOngoingRequests(ctx context.Context, courseCode, eventFeedbackName string) (int, error)
	DeleteExpiredOngoingRequests(ctx context.Context, now time.Time) (int, error)
	ListOngoingRequests(ctx context.Context) ([]*types.OngoingRequest, error)
}

// Ledger correlates device responses with the web user who asked. Entries
// are keyed by course code and feedback event and expire after a TTL so a
// device that never answers cannot block the key forever.
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// New creates a ledger whose entries live for ttl.
func New(store Store, ttl time.Duration) (*Ledger, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	return &Ledger{store: store, ttl: ttl, now: time.Now}, nil
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// TTL returns how long entries live.
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// Create records that email is waiting for eventFeedbackName on courseCode.
func (l *Ledger) Create(ctx context.Context, email, courseCode, eventFeedbackName string) (*types.OngoingRequest, error) {
	return l.CreateUntil(ctx, email, courseCode, eventFeedbackName, time.Time{})
}

// CreateUntil is Create for round trips the device only answers after
// holdUntil, such as an attendance window. The entry expires one TTL after
// the later of now and holdUntil.
func (l *Ledger) CreateUntil(ctx context.Context, email, courseCode, eventFeedbackName string, holdUntil time.Time) (*types.OngoingRequest, error) {
	if email == "" || courseCode == "" || eventFeedbackName == "" {
		return nil, ErrInvalidRequest
	}

	now := l.now()
	existing, err := l.store.FindOngoingRequest(ctx, courseCode, eventFeedbackName, now)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s started by %s", ErrRequestInFlight, courseCode, existing.Email)
	case !errors.Is(err, interfaces.ErrNotFound):
		return nil, fmt.Errorf("failed to check ongoing requests: %w", err)
	}

	base := now
	if holdUntil.After(base) {
		base = holdUntil
	}
	req := &types.OngoingRequest{
		Email:             types.NormalizeClientType(email),
		CourseCode:        courseCode,
		EventFeedbackName: eventFeedbackName,
		State:             types.RequestRequested,
		CreatedAt:         now,
		ExpiresAt:         base.Add(l.ttl),
	}
	if err := l.store.CreateOngoingRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create ongoing request: %w", err)
	}

	log.WithFields(log.Fields{
		"request_id":  req.ID,
		"email":       req.Email,
		"course_code": courseCode,
		"feedback":    eventFeedbackName,
	}).Info("ongoing request created")
	return req, nil
}

// MarkAwaiting moves a request to awaiting_hardware once it was forwarded.
func (l *Ledger) MarkAwaiting(ctx context.Context, req *types.OngoingRequest) error {
	if err := l.store.UpdateOngoingRequestState(ctx, req.ID, types.RequestAwaitingHardware); err != nil {
		return fmt.Errorf("failed to mark request awaiting hardware: %w", err)
	}
	req.State = types.RequestAwaitingHardware
	return nil
}

// Find returns the most recent unexpired entry for a key, or an error
// wrapping interfaces.ErrNotFound.
func (l *Ledger) Find(ctx context.Context, courseCode, eventFeedbackName string) (*types.OngoingRequest, error) {
	return l.store.FindOngoingRequest(ctx, courseCode, eventFeedbackName, l.now())
}

// Delete resolves every entry for a key.
func (l *Ledger) Delete(ctx context.Context, courseCode, eventFeedbackName string) error {
	n, err := l.store.DeleteOngoingRequests(ctx, courseCode, eventFeedbackName)
	if err != nil {
		return fmt.Errorf("failed to delete ongoing request: %w", err)
	}
	if n > 0 {
		log.WithFields(log.Fields{
			"course_code": courseCode,
			"feedback":    eventFeedbackName,
		}).Debug("ongoing request resolved")
	}
	return nil
}

// Sweep removes entries that expired at or before now.
func (l *Ledger) Sweep(ctx context.Context) (int, error) {
	n, err := l.store.DeleteExpiredOngoingRequests(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep ongoing requests: %w", err)
	}
	if n > 0 {
		log.WithField("count", n).Info("expired ongoing requests removed")
	}
	return n, nil
}

// List returns every stored entry, expired ones included.
func (l *Ledger) List(ctx context.Context) ([]*types.OngoingRequest, error) {
	return l.store.ListOngoingRequests(ctx)
}
