package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendancehub/internal/testutil"
	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupLedger(t *testing.T) (*Ledger, *clock) {
	t.Helper()
	l, err := New(testutil.NewStore(t), 2*time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := &clock{t: time.Now()}
	l.SetClock(c.now)
	return l, c
}

func TestNew_RejectsNonPositiveTTL(t *testing.T) {
	if _, err := New(nil, 0); err != ErrInvalidTTL {
		t.Errorf("Expected ErrInvalidTTL, got %v", err)
	}
}

func TestLedger_CreateValidation(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	tests := []struct {
		name, email, course, event string
	}{
		{"missing email", "", "CSC301", types.EventEnrollFeedback},
		{"missing course", "a@x.edu", "", types.EventEnrollFeedback},
		{"missing event", "a@x.edu", "CSC301", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Create(ctx, tt.email, tt.course, tt.event); err != ErrInvalidRequest {
				t.Errorf("Expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestLedger_Lifecycle(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	req, err := l.Create(ctx, "Ada@X.edu", "CSC301", types.EventAttendanceFeedback)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.State != types.RequestRequested || req.Email != "ada@x.edu" {
		t.Errorf("unexpected new request %+v", req)
	}
	if got := req.ExpiresAt.Sub(req.CreatedAt); got != 2*time.Minute {
		t.Errorf("expected ttl of 2m, got %v", got)
	}

	if err := l.MarkAwaiting(ctx, req); err != nil {
		t.Fatalf("MarkAwaiting failed: %v", err)
	}

	found, err := l.Find(ctx, "CSC301", types.EventAttendanceFeedback)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.ID != req.ID || found.State != types.RequestAwaitingHardware {
		t.Errorf("unexpected found request %+v", found)
	}

	// The same course with a different feedback event is a different key.
	if _, err := l.Create(ctx, "ada@x.edu", "CSC301", types.EventEnrollFeedback); err != nil {
		t.Errorf("different event should not conflict: %v", err)
	}

	if err := l.Delete(ctx, "CSC301", types.EventAttendanceFeedback); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := l.Find(ctx, "CSC301", types.EventAttendanceFeedback); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := l.Delete(ctx, "CSC301", types.EventAttendanceFeedback); err != nil {
		t.Errorf("deleting a resolved key should be a no-op: %v", err)
	}
}

func TestLedger_RejectsDuplicateInFlight(t *testing.T) {
	l, c := setupLedger(t)
	ctx := context.Background()

	if _, err := l.Create(ctx, "ada@x.edu", "CSC301", types.EventAttendanceFeedback); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := l.Create(ctx, "bob@x.edu", "CSC301", types.EventAttendanceFeedback)
	if !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("Expected ErrRequestInFlight, got %v", err)
	}

	// Once the first entry expires the key is free again.
	c.advance(2 * time.Minute)
	req, err := l.Create(ctx, "bob@x.edu", "CSC301", types.EventAttendanceFeedback)
	if err != nil {
		t.Fatalf("Create after expiry failed: %v", err)
	}

	found, err := l.Find(ctx, "CSC301", types.EventAttendanceFeedback)
	if err != nil || found.ID != req.ID {
		t.Errorf("expected the newer entry, got %+v err=%v", found, err)
	}
}

func TestLedger_Sweep(t *testing.T) {
	l, c := setupLedger(t)
	ctx := context.Background()

	_, _ = l.Create(ctx, "ada@x.edu", "CSC301", types.EventEnrollFeedback)
	c.advance(time.Minute)
	_, _ = l.Create(ctx, "ada@x.edu", "CSC305", types.EventEnrollFeedback)

	c.advance(90 * time.Second)
	n, err := l.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one expired entry swept, got %d", n)
	}

	all, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 || all[0].CourseCode != "CSC305" {
		t.Errorf("unexpected remaining entries %+v", all)
	}
}

func TestLedger_CreateUntilHoldsForWindow(t *testing.T) {
	l, c := setupLedger(t)
	ctx := context.Background()

	end := c.t.Add(45 * time.Minute)
	req, err := l.CreateUntil(ctx, "ada@x.edu", "CSC301", types.EventAttendanceFeedback, end)
	if err != nil {
		t.Fatalf("CreateUntil failed: %v", err)
	}
	if d := end.Add(l.TTL()).Sub(req.ExpiresAt); d < 0 || d >= time.Microsecond {
		t.Errorf("expected expiry one TTL after the window, got %v", req.ExpiresAt)
	}

	c.advance(46 * time.Minute)
	if n, err := l.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing swept inside the grace, got %d, %v", n, err)
	}
	if _, err := l.Find(ctx, "CSC301", types.EventAttendanceFeedback); err != nil {
		t.Errorf("expected entry still found, got %v", err)
	}

	c.advance(2 * time.Minute)
	if n, err := l.Sweep(ctx); err != nil || n != 1 {
		t.Errorf("expected entry swept after the grace, got %d, %v", n, err)
	}
}

func TestLedger_CreateUntilPastDeadlineUsesTTL(t *testing.T) {
	l, c := setupLedger(t)

	req, err := l.CreateUntil(context.Background(), "ada@x.edu", "CSC301", types.EventAttendanceFeedback, c.t.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CreateUntil failed: %v", err)
	}
	if req.ExpiresAt.After(c.t.Add(l.TTL())) {
		t.Errorf("expected expiry one TTL from now, got %v", req.ExpiresAt)
	}
}
