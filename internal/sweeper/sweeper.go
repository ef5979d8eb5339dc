// Package sweeper removes students whose enrollment was never confirmed by a
// device.
package sweeper

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
)

// Store is the persistence the sweeper needs.
type Store interface {
	DeletePendingStudentsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper deletes pending students older than a grace period.
type Sweeper struct {
	store Store
	grace time.Duration
	now   func() time.Time
}

// New creates a sweeper. Students staged less than grace ago are kept since
// their device may still answer.
func New(store Store, grace time.Duration) *Sweeper {
	return &Sweeper{store: store, grace: grace, now: time.Now}
}

// Run performs one sweep and returns the number of students removed.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.grace)
	n, err := s.store.DeletePendingStudentsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"removed": n,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("pending student sweep finished")
	return n, nil
}

// Task adapts Run for the scheduler.
func (s *Sweeper) Task() interfaces.Task {
	return func(ctx context.Context) {
		if _, err := s.Run(ctx); err != nil {
			log.WithError(err).Error("pending student sweep failed")
		}
	}
}
