// Package scheduler runs one-shot and periodic jobs on the event loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
)

var ErrInvalidInterval = errors.New("interval must be positive")

// Scheduler fires jobs on wall-clock time and hands them to an executor, so
// the job body runs serialized with everything else on the event loop.
type Scheduler struct {
	cron gocron.Scheduler
	exec interfaces.Executor
	now  func() time.Time
}

// New creates a stopped scheduler.
func New(exec interfaces.Executor) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{cron: cron, exec: exec, now: time.Now}, nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running job triggers and removes every job.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// ScheduleAt runs task once at the given time. Times not in the future are
// handed to the executor immediately.
func (s *Scheduler) ScheduleAt(at time.Time, name string, task interfaces.Task) error {
	if !at.After(s.now()) {
		return s.exec.Execute(name, task)
	}

	_, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() { s.submit(name, task) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	log.WithFields(log.Fields{
		"job": name,
		"at":  at.Format(time.RFC3339),
	}).Info("job scheduled")
	return nil
}

// Every runs task each interval until the scheduler stops.
func (s *Scheduler) Every(interval time.Duration, name string, task interfaces.Task) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.submit(name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// Pending returns the names of jobs still registered.
func (s *Scheduler) Pending() []string {
	var names []string
	for _, job := range s.cron.Jobs() {
		names = append(names, job.Name())
	}
	return names
}

func (s *Scheduler) submit(name string, task interfaces.Task) {
	if err := s.exec.Execute(name, task); err != nil {
		log.WithField("job", name).WithError(err).Error("failed to hand job to event loop")
	}
}

// Inline is an executor that runs tasks on the calling goroutine. The CLI
// uses it where no event loop is running.
type Inline struct {
	Ctx context.Context
}

func (i Inline) Execute(name string, task interfaces.Task) error {
	ctx := i.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	task(ctx)
	return nil
}
